package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-dsp/abi"
)

// paramSet is one -set override.
type paramSet struct {
	index int
	value float32
}

// parseSets parses "i=v,i=v". Later entries for the same index win.
func parseSets(s string) ([]paramSet, error) {
	if s == "" {
		return nil, nil
	}
	byIndex := make(map[int]float32)
	for _, kv := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(kv), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("parameter override %q: want index=value", kv)
		}
		i, err := strconv.Atoi(parts[0])
		if err != nil || i < 0 {
			return nil, fmt.Errorf("parameter override %q: bad index", kv)
		}
		v, err := strconv.ParseFloat(parts[1], 32)
		if err != nil {
			return nil, fmt.Errorf("parameter override %q: %w", kv, err)
		}
		byIndex[i] = float32(v)
	}

	sets := make([]paramSet, 0, len(byIndex))
	for i, v := range byIndex {
		sets = append(sets, paramSet{index: i, value: v})
	}
	sort.Slice(sets, func(a, b int) bool { return sets[a].index < sets[b].index })
	return sets, nil
}

// parseCaps parses a comma separated capability list. "all" enables
// everything, "none" or an empty string nothing.
func parseCaps(s string) (abi.Capabilities, error) {
	var c abi.Capabilities
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "", "none":
		case "all":
			c = abi.Capabilities{Programs: true, State: true, FullState: true, MidiInput: true, MidiOutput: true}
		case "programs":
			c.Programs = true
		case "state":
			c.State = true
		case "fullstate":
			c.State = true
			c.FullState = true
		case "midi":
			c.MidiInput = true
			c.MidiOutput = true
		case "midi-in":
			c.MidiInput = true
		case "midi-out":
			c.MidiOutput = true
		default:
			return c, fmt.Errorf("unknown capability %q", name)
		}
	}
	return c, nil
}
