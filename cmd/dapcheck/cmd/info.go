package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/dapcheck/pkg/dap"
	"github.com/OpenTraceLab/dapcheck/pkg/transport"
)

var idcodeDevices int

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show what the probe reports about itself",
	Long: `Query the DAP_Info strings and values of the probe, then connect
and read the IDCODE of the first devices on the scan chain.

Examples:
  dapcheck info
  dapcheck info --adapter sim --devices 2`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().StringVarP(&adapterType, "adapter", "a", "", "adapter type (usb, sim)")
	infoCmd.Flags().StringVar(&probeSerial, "serial", "", "probe serial number (substring match)")
	infoCmd.Flags().IntVar(&idcodeDevices, "devices", 1, "number of chain devices to read IDCODEs from (0 skips)")
}

var capabilityNames = []struct {
	bit  uint32
	name string
}{
	{dap.CapSWD, "SWD"},
	{dap.CapJTAG, "JTAG"},
	{dap.CapSWOUART, "SWO-UART"},
	{dap.CapSWOManch, "SWO-Manchester"},
	{dap.CapAtomic, "Atomic"},
	{dap.CapTestTimer, "TestTimer"},
	{dap.CapSWOStreaming, "SWO-Streaming"},
}

func runInfo(cmd *cobra.Command, args []string) error {
	c := cfg
	if cmd.Flags().Changed("adapter") {
		c.Adapter = strings.ToLower(adapterType)
	}
	if cmd.Flags().Changed("serial") {
		c.USB.Serial = probeSerial
	}
	if err := c.Validate(); err != nil {
		return withCode(ExitSetup, err)
	}

	t, err := openTransport(c)
	if err != nil {
		return withCode(ExitSetup, err)
	}
	defer t.Close()

	client := dap.NewClient(t)
	client.SetTimeout(c.Timeout)

	info, err := client.Identify()
	if err != nil {
		return withCode(ExitFault, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Probe Information")
	fmt.Fprintln(out, "=================")
	fmt.Fprintf(out, "Vendor:        %s\n", orNone(info.Vendor))
	fmt.Fprintf(out, "Product:       %s\n", orNone(info.Product))
	fmt.Fprintf(out, "Serial:        %s\n", orNone(info.SerialNumber))
	fmt.Fprintf(out, "Firmware:      %s\n", orNone(info.Firmware))
	if info.TargetVendor != "" || info.TargetName != "" {
		fmt.Fprintf(out, "Target:        %s %s\n", info.TargetVendor, info.TargetName)
	}

	var caps []string
	for _, cn := range capabilityNames {
		if info.Supports(cn.bit) {
			caps = append(caps, cn.name)
		}
	}
	fmt.Fprintf(out, "Capabilities:  0x%02X %s\n", info.Capabilities, strings.Join(caps, " "))
	fmt.Fprintf(out, "Packets:       %d x %d bytes\n", info.PacketCount, info.PacketSize)
	fmt.Fprintf(out, "SWO buffer:    %d bytes\n", info.SWOBufferSize)

	if idcodeDevices <= 0 {
		return nil
	}

	port, err := client.Connect(dap.PortDefault)
	if err != nil {
		if _, ok := transport.AsError(err); ok {
			return withCode(ExitFault, err)
		}
		fmt.Fprintf(out, "\nConnect failed: %v\n", err)
		return nil
	}
	defer client.Disconnect()

	fmt.Fprintf(out, "\nConnected:     %s\n", portName(port))
	for i := 0; i < idcodeDevices && i < 256; i++ {
		id, err := client.IDCode(byte(i))
		if err != nil {
			if _, ok := transport.AsError(err); ok {
				return withCode(ExitFault, err)
			}
			fmt.Fprintf(out, "Device %d:      %v\n", i, err)
			break
		}
		fmt.Fprintf(out, "Device %d:      %s\n", i, id)
	}
	return nil
}

func portName(port byte) string {
	switch port {
	case dap.PortSWD:
		return "SWD"
	case dap.PortJTAG:
		return "JTAG"
	default:
		return fmt.Sprintf("port %d", port)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
