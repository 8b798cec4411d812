package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/structsense/dashboard/models"
)

var resetConfirm bool

// devicesCmd groups device commands; bare 'devices' lists them
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List and manage devices",
	RunE:  runDevicesList,
}

var devicesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one device",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesGet,
}

var devicesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a device and all of its readings (admin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesDelete,
}

var devicesResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Clear a device's readings so the next one becomes the baseline (admin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesReset,
}

func init() {
	devicesResetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "Confirm the reset")

	devicesCmd.AddCommand(devicesGetCmd)
	devicesCmd.AddCommand(devicesDeleteCmd)
	devicesCmd.AddCommand(devicesResetCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	c, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	devices, err := c.Devices(ctx)
	if err != nil {
		return explain(err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No devices registered")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUID\tNAME\tTYPE\tCONNECTED\tLAST SEEN")
	for _, d := range devices {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n",
			d.ID, d.DeviceUID, d.Name, d.Type, d.ConnectionStatus, formatOptionalTime(d.LastSeenAt))
	}
	return tw.Flush()
}

func runDevicesGet(cmd *cobra.Command, args []string) error {
	id, err := parseDeviceID(args[0])
	if err != nil {
		return err
	}
	c, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	d, err := c.Device(ctx, id)
	if err != nil {
		return explain(err)
	}
	printDevice(cmd.OutOrStdout(), d)
	return nil
}

func runDevicesDelete(cmd *cobra.Command, args []string) error {
	id, err := parseDeviceID(args[0])
	if err != nil {
		return err
	}
	c, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	if err := c.DeleteDevice(ctx, id); err != nil {
		return explain(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted device %d\n", id)
	return nil
}

func runDevicesReset(cmd *cobra.Command, args []string) error {
	id, err := parseDeviceID(args[0])
	if err != nil {
		return err
	}
	if !resetConfirm {
		return fmt.Errorf("resetting removes every reading of device %d; pass --yes to confirm", id)
	}
	c, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	result, err := c.ResetDevice(ctx, id)
	if err != nil {
		return explain(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset device %d: %d readings removed\n", id, result.ReadingsRemoved)
	return nil
}

func printDevice(w io.Writer, d *models.Device) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", d.ID)
	fmt.Fprintf(tw, "UID:\t%s\n", d.DeviceUID)
	fmt.Fprintf(tw, "Name:\t%s\n", d.Name)
	fmt.Fprintf(tw, "Type:\t%s\n", d.Type)
	fmt.Fprintf(tw, "Building:\t%s\n", deref(d.BuildingName))
	fmt.Fprintf(tw, "Location:\t%s\n", deref(d.LocationDescription))
	fmt.Fprintf(tw, "Notify:\t%s\n", deref(d.NotificationEmail))
	fmt.Fprintf(tw, "Connected:\t%t\n", d.ConnectionStatus)
	fmt.Fprintf(tw, "Last seen:\t%s\n", formatOptionalTime(d.LastSeenAt))
	fmt.Fprintf(tw, "Installed:\t%s\n", d.InstalledAt.Local().Format(time.RFC3339))
	_ = tw.Flush()
}

func parseDeviceID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid device id %q", s)
	}
	return id, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
