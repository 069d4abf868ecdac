package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// nodeSpec describes one graph node as read from a topology YAML file.
// Only the fields relevant to Type are consulted when building the node.
type nodeSpec struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Path     string `yaml:"path,omitempty"`
	Channels int    `yaml:"channels,omitempty"`
	FFTSize  int    `yaml:"fft_size,omitempty"`
	BitDepth int    `yaml:"bit_depth,omitempty"`
}

// connectionSpec names one edge by the node ids declared in Nodes.
type connectionSpec struct {
	From        string `yaml:"from"`
	FromChannel int    `yaml:"from_channel"`
	To          string `yaml:"to"`
	ToChannel   int    `yaml:"to_channel"`
}

// topology is the YAML-level description of a graph to build: sample rate
// and block size to prepare it with, then its nodes and connections. This
// is the host's own persistence format (spec.md §6 leaves persistence to
// the host); the graph package never reads or writes YAML itself.
type topology struct {
	SampleRate  float64          `yaml:"sample_rate"`
	BlockSize   int              `yaml:"block_size"`
	Nodes       []nodeSpec       `yaml:"nodes"`
	Connections []connectionSpec `yaml:"connections"`
}

func loadTopology(path string) (*topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}
	var t topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	if t.SampleRate <= 0 {
		t.SampleRate = 44100
	}
	if t.BlockSize <= 0 {
		t.BlockSize = 512
	}
	return &t, nil
}
