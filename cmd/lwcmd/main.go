// lwcmd builds downlink command frames for the node and decodes the uplinks
// it sends back. Encode turns the console JSON form into a port and hex
// payload ready for the command queue; decode turns a captured uplink back
// into JSON.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/lorawan-node/pv-node/pkg/lwcmd"
	"github.com/lorawan-node/pv-node/pkg/payload"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "encode":
		err = encode(os.Args[2:])
	case "decode":
		err = decode(os.Args[2:])
	case "ports":
		listPorts()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "lwcmd:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage:
  lwcmd encode '<json>'      build a downlink frame from its JSON form
  lwcmd decode <port> <hex>  decode a node uplink payload
  lwcmd ports                list the node's uplink and command ports

Examples:
  lwcmd encode '{"cmd":"set-sleep-interval","seconds":300}'
  lwcmd encode '{"cmd":"get-status"}'
  lwcmd decode 1 014223280b8608b4000013ee
  lwcmd decode 56 0d3001
`)
}

func encode(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("encode takes exactly one JSON argument")
	}

	cmd, err := lwcmd.FromJSON([]byte(args[0]))
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"cmd":     lwcmd.Name(cmd),
		"fPort":   cmd.Port(),
		"payload": hex.EncodeToString(cmd.Encode()),
	})
}

func decode(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("decode takes a port and a hex payload")
	}

	p, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return fmt.Errorf("port %q: %w", args[0], err)
	}
	port := uint8(p)

	data, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	var fields map[string]interface{}
	switch port {
	case payload.PortLiveData, payload.PortEnergy:
		fields, err = payload.Decode(port, data)
	default:
		fields, err = lwcmd.DecodeResponse(port, data)
	}
	if err != nil {
		return err
	}

	fields["fPort"] = port
	return printJSON(fields)
}

func listPorts() {
	rows := []struct {
		port uint8
		name string
		kind string
	}{
		{payload.PortLiveData, "live-data", "telemetry"},
		{payload.PortEnergy, "energy", "telemetry"},
		{lwcmd.PortGetDateTime, lwcmd.NameGetDateTime, "command"},
		{lwcmd.PortSetDateTime, lwcmd.NameSetDateTime, "command"},
		{lwcmd.PortSetSleepInterval, lwcmd.NameSetSleepInterval, "command"},
		{lwcmd.PortSetSleepIntervalLong, lwcmd.NameSetSleepIntervalLong, "command"},
		{lwcmd.PortSetStatusInterval, lwcmd.NameSetStatusInterval, "command"},
		{lwcmd.PortGetConfig, lwcmd.NameGetConfig, "command"},
		{lwcmd.PortGetStatus, lwcmd.NameGetStatus, "command"},
	}

	for _, r := range rows {
		fmt.Printf("%3d  0x%02x  %-10s %s\n", r.port, r.port, r.kind, r.name)
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
