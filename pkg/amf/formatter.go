// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"fmt"
	"sort"
	"strings"
)

// FormatFrame renders a raw frame with its control bytes spelled out, e.g.
// "/1ZR<CR>" or "/0@<ETX><CR><LF>".
func FormatFrame(raw []byte) string {
	var sb strings.Builder
	for _, b := range raw {
		switch {
		case b == '\r':
			sb.WriteString("<CR>")
		case b == '\n':
			sb.WriteString("<LF>")
		case b == 0x03:
			sb.WriteString("<ETX>")
		case b < 0x20 || b > 0x7E:
			fmt.Fprintf(&sb, "<%02X>", b)
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// FormatResponse formats a decoded answer on one line.
func FormatResponse(r *Response) string {
	status := "unknown"
	if code, err := r.ErrorCode(); err == nil {
		status = code.Description
	}

	result := fmt.Sprintf("addr=%c status=%q (%s) data=%q", r.Address, r.Status, status, r.Data)
	if r.HasCounter() {
		result += fmt.Sprintf(" counter=%q", r.Counter)
	}
	return result
}

// FormatStatus renders a status-detail payload with its label.
func FormatStatus(payload string) string {
	if payload == "" {
		return "Busy (empty)"
	}
	code, err := LookupStatus(payload)
	if err != nil {
		return fmt.Sprintf("%s (%v)", payload, err)
	}
	return fmt.Sprintf("%03d %s", code.Value, code.Label)
}

var verbNames = map[string]string{
	VerbSetAddress:          "SET_ADDRESS",
	VerbSetAnswerMode:       "SET_ANSWER_MODE",
	VerbSetValveConfig:      "SET_VALVE_CONFIGURATION",
	VerbResetValveCounter:   "RESET_VALVE_COUNTER",
	VerbSlowMode:            "SLOW_MODE",
	VerbFastMode:            "FAST_MODE",
	VerbActivateRS232:       "ACTIVATE_RS232",
	VerbActivateRS485:       "ACTIVATE_RS485",
	VerbSetPlungerForce:     "SET_PLUNGER_FORCE",
	VerbSetPeakSpeed:        "SET_PEAK_SPEED",
	VerbSetAccelerationRate: "SET_ACCELERATION_RATE",
	VerbSetDecelerationRate: "SET_DECELERATION_RATE",
	VerbSetScaling:          "SET_SCALING",

	VerbReexecute:           "REEXECUTE",
	VerbRepeat:              "REPEAT",
	VerbRepeatSequenceStart: "REPEAT_SEQUENCE_START",
	VerbDelay:               "DELAY",
	VerbHalt:                "HALT",
	VerbHardStop:            "HARD_STOP",
	VerbPowerOff:            "POWER_OFF",

	VerbHome:  "HOME",
	VerbHome2: "HOME_2",

	VerbSwitchShortestForce:         "SWITCH_SHORTEST_FORCE",
	VerbSwitchShortest:              "SWITCH_SHORTEST",
	VerbSwitchClockwiseForce:        "SWITCH_CLOCKWISE_FORCE",
	VerbSwitchClockwise:             "SWITCH_CLOCKWISE",
	VerbSwitchCounterClockwiseForce: "SWITCH_COUNTERCLOCKWISE_FORCE",
	VerbSwitchCounterClockwise:      "SWITCH_COUNTERCLOCKWISE",

	VerbAbsolutePosition:  "ABSOLUTE_POSITION",
	VerbAbsolutePosition2: "ABSOLUTE_POSITION_2",
	VerbRelativePickup:    "RELATIVE_PICKUP",
	VerbRelativePickup2:   "RELATIVE_PICKUP_2",
	VerbRelativeDispense:  "RELATIVE_DISPENSE",
	VerbRelativeDispense2: "RELATIVE_DISPENSE_2",

	VerbGetStatus:                "GET_STATUS",
	VerbGetPlungerPosition:       "GET_PLUNGER_POSITION",
	VerbGetMaxSpeed:              "GET_MAX_SPEED",
	VerbGetPlungerActualPosition: "GET_PLUNGER_ACTUAL_POSITION",
	VerbGetValvePosition:         "GET_VALVE_POSITION",
	VerbGetValveMoves:            "GET_VALVE_MOVES",
	VerbGetValveMovesSinceLast:   "GET_VALVE_MOVES_SINCE_LAST",
	VerbGetSpeedMode:             "GET_SPEED_MODE",
	VerbGetFirmwareChecksum:      "GET_FIRMWARE_CHECKSUM",
	VerbGetFirmwareVersion:       "GET_FIRMWARE_VERSION",
	VerbGetAcceleration:          "GET_ACCELERATION",
	VerbGetAddress:               "GET_ADDRESS",
	VerbGetDeceleration:          "GET_DECELERATION",
	VerbGetScaling:               "GET_SCALING",
	VerbGetConfiguration:         "GET_CONFIGURATION",
	VerbGetPlungerCurrent:        "GET_PLUNGER_CURRENT",
	VerbGetAnswerMode:            "GET_ANSWER_MODE",
	VerbGetValvePortCount:        "GET_VALVE_PORT_COUNT",
	VerbReset:                    "RESET",
	VerbGetSupplyVoltage:         "GET_SUPPLY_VOLTAGE",
	VerbGetUID:                   "GET_UID",
	VerbIsPumpInitialized:        "IS_PUMP_INITIALIZED",
	VerbGetPumpStatusDetails:     "GET_PUMP_STATUS_DETAILS",
	VerbGetStatusDetails:         "GET_STATUS_DETAILS",
}

// FormatVerb returns the human-readable name of a verb, or "UNKNOWN".
func FormatVerb(verb string) string {
	if name, ok := verbNames[verb]; ok {
		return name
	}
	return "UNKNOWN"
}

// LookupVerb resolves a verb by its human-readable name (any case). Strings
// that are not names are returned unchanged, so raw verbs pass through.
func LookupVerb(s string) string {
	upper := strings.ToUpper(s)
	for verb, name := range verbNames {
		if name == upper {
			return verb
		}
	}
	return s
}

// VerbNames lists every known verb name, sorted.
func VerbNames() []string {
	names := make([]string, 0, len(verbNames))
	for _, name := range verbNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseFrame splits a command frame, as produced by EncodeCommand, back into
// its address and command text without the execute suffix. It is used to
// annotate recorded traffic.
func ParseFrame(frame []byte) (Address, string, error) {
	s := strings.TrimSuffix(string(frame), string(rune(EndCommand)))
	if len(s) < 3 || s[0] != StartCommand {
		return 0, "", fmt.Errorf("%w: command frame %q", ErrMalformedResponse, FormatFrame(frame))
	}
	body := s[2:]
	if len(body) > 1 && body[len(body)-1] == Execute && Cmd(body).NeedsExecute() {
		body = body[:len(body)-1]
	}
	return Address(s[1]), body, nil
}
