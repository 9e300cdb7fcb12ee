package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DestinationKind distinguishes the two mutually exclusive import targets:
// a flat Dataset or a hierarchical Screen.
type DestinationKind string

const (
	DestDataset DestinationKind = "Dataset"
	DestScreen  DestinationKind = "Screen"
)

// String returns the string representation of the destination kind.
func (k DestinationKind) String() string {
	return string(k)
}

// IsValid checks whether the destination kind is a known value.
func (k DestinationKind) IsValid() bool {
	switch k {
	case DestDataset, DestScreen:
		return true
	}
	return false
}

// ParseDestination splits a destination identifier of the form "Dataset:5"
// or "Screen:12" into its kind and numeric id.
func ParseDestination(s string) (DestinationKind, int64, error) {
	kindStr, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("destination %q: expected <kind>:<id>", s)
	}
	kind := DestinationKind(kindStr)
	if !kind.IsValid() {
		return "", 0, fmt.Errorf("destination %q: unknown kind %q", s, kindStr)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("destination %q: bad id %q", s, idStr)
	}
	return kind, id, nil
}

// Order is one unit of ingestion work, materialized from a submitted event
// for exactly one import attempt. It is owned by that attempt and discarded
// when the attempt completes; nothing about an order is persisted except
// through event rows.
type Order struct {
	UUID          string
	Username      string
	Group         string
	GroupID       int64
	Destination   DestinationKind
	DestinationID int64
	Files         []string
	FileNames     []string
	Preprocessing *Preprocessing
}

// FileName returns the display name for the file at index i, falling back
// to the file path when no name was submitted.
func (o *Order) FileName(i int) string {
	if i < len(o.FileNames) && o.FileNames[i] != "" {
		return o.FileNames[i]
	}
	return o.Files[i]
}
