// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	hostStyle   = cellStyle.Foreground(lipgloss.Color("10"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// newTable returns a bordered table with a bold header row.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(faintStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// renderSnapshot draws a room: its fields, its data, and its
// participants in slot order.
func renderSnapshot(title string, snapshot *roomservice.RoomSnapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	fields := newTable("Field", "Value").
		Row("id", orDash(snapshot.ID)).
		Row("code", orDash(snapshot.Code)).
		Row("name", orDash(snapshot.Name)).
		Row("host", orDash(snapshot.HostID)).
		Row("private", strconv.FormatBool(snapshot.IsPrivate)).
		Row("locked", strconv.FormatBool(snapshot.IsLocked)).
		Row("capacity", strconv.Itoa(snapshot.MaxParticipants)).
		Row("available slots", strconv.Itoa(snapshot.AvailableSlots)).
		Row("last updated", formatTime(snapshot.LastUpdated))
	b.WriteString(fields.Render())
	b.WriteString("\n")

	if len(snapshot.Data) > 0 {
		data := newTable("Key", "Value", "Visibility", "Index")
		for _, key := range slices.Sorted(maps.Keys(snapshot.Data)) {
			object := snapshot.Data[key]
			data.Row(key, object.Value, object.Visibility.String(), object.Index.String())
		}
		b.WriteString(data.Render())
		b.WriteString("\n")
	}

	participants := newTable("Slot", "Participant", "Connection", "Allocation", "Data").
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row < len(snapshot.Participants) && snapshot.Participants[row].ID == snapshot.HostID:
				return hostStyle
			default:
				return cellStyle
			}
		})
	for slot, participant := range snapshot.Participants {
		id := participant.ID
		if id == snapshot.HostID {
			id += " (host)"
		}
		participants.Row(strconv.Itoa(slot), id, orDash(participant.ConnectionInfo),
			orDash(participant.AllocationID), formatData(participant.Data))
	}
	b.WriteString(participants.Render())
	b.WriteString("\n")
	return b.String()
}

func formatData(data map[string]remotevar.DataObject) string {
	if len(data) == 0 {
		return "-"
	}
	pairs := make([]string, 0, len(data))
	for _, key := range slices.Sorted(maps.Keys(data)) {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, data[key].Value))
	}
	return strings.Join(pairs, " ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
