package report_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/duty-ledger/duty"
	"github.com/warp/duty-ledger/report"
	"github.com/warp/duty-ledger/rollover"
)

var february = duty.MonthKey{Month: time.February, Year: 2025}

func sampleRun() rollover.Run {
	return rollover.Run{
		ID:          "run-1",
		GeneratedAt: time.Date(2025, time.March, 1, 0, 5, 0, 0, time.UTC),
		Snapshot: duty.Snapshot{
			Key: february,
			Rows: []duty.LeaderboardRow{
				{PersonID: "bob", TotalSeconds: 5461, ShiftsCompleted: 1},
				{PersonID: "alice", TotalSeconds: 3661, ShiftsCompleted: 2},
			},
		},
	}
}

// =============================================================================
// FORMATTING
// =============================================================================

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1h 1m", report.FormatDuration(3661, false))
	assert.Equal(t, "1h 1m 1s", report.FormatDuration(3661, true))
	assert.Equal(t, "0h 0m", report.FormatDuration(0, false))
	assert.Equal(t, "-0h 10m", report.FormatDuration(-600, false))
	assert.Equal(t, "25h 0m", report.FormatDuration(90000, false))
}

func TestHours_RoundsToTwoPlaces(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1.02").Equal(report.Hours(3661)))
	assert.True(t, decimal.RequireFromString("-0.17").Equal(report.Hours(-600)))
}

func TestFileBase(t *testing.T) {
	assert.Equal(t, "Duty_Monthly_Report_2025_02", report.FileBase(february))
}

// =============================================================================
// BUILD + TEXT
// =============================================================================

func TestBuild_RanksAndResolvesNames(t *testing.T) {
	rep := report.Build(context.Background(), sampleRun(), report.StaticNames{"bob": "Bob B."})

	require.Len(t, rep.Rows, 2)
	assert.Equal(t, 1, rep.Rows[0].Rank)
	assert.Equal(t, "Bob B.", rep.Rows[0].Name)
	assert.Equal(t, "Unknown User (ID: alice)", rep.Rows[1].Name)
	assert.Equal(t, int64(1830), rep.Rows[1].AverageSeconds)
	assert.Equal(t, int64(9122), rep.TotalSeconds)
	assert.Equal(t, int64(3), rep.TotalShifts)
	assert.Equal(t, "run-1", rep.RunID)
}

func TestText_Layout(t *testing.T) {
	rep := report.Build(context.Background(), sampleRun(), report.StaticNames{"bob": "Bob", "alice": "Alice"})

	want := "Monthly Duty Report - February 2025\n" +
		"=====================================\n\n" +
		"1. Bob\n" +
		"   Total Hours: 1h 31m\n" +
		"   Shifts: 1\n" +
		"   Average Shift: 1h 31m\n\n" +
		"2. Alice\n" +
		"   Total Hours: 1h 1m\n" +
		"   Shifts: 2\n" +
		"   Average Shift: 0h 30m\n\n"
	assert.Equal(t, want, report.Text(rep))
}

func TestText_EmptyMonth(t *testing.T) {
	rep := report.FromSnapshot(context.Background(), duty.Snapshot{Key: february}, nil, "", time.Time{})

	assert.True(t, rep.Empty())
	assert.Contains(t, report.Text(rep), "No duty time recorded for this month.")
}

func TestText_ZeroShiftRow_AverageIsZero(t *testing.T) {
	// GIVEN: a person whose only entry is an admin adjustment
	snapshot := duty.Snapshot{Key: february, Rows: []duty.LeaderboardRow{{PersonID: "carol", TotalSeconds: 1800}}}

	rep := report.FromSnapshot(context.Background(), snapshot, nil, "", time.Time{})

	assert.Contains(t, report.Text(rep), "   Average Shift: 0h 0m\n")
}

// =============================================================================
// XLSX
// =============================================================================

func TestXLSX_ReadsBack(t *testing.T) {
	rep := report.Build(context.Background(), sampleRun(), report.StaticNames{"bob": "Bob"})

	data, err := report.XLSX(rep)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, report.SheetName, f.GetSheetName(0))
	rows, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Monthly Duty Report - February 2025", rows[0][0])
	assert.Equal(t, "Rank", rows[1][0])
	assert.Equal(t, []string{"1", "bob", "Bob", "5461", "1.52", "1", "1h 31m"}, rows[2])
	assert.Equal(t, "alice", rows[3][1])
	assert.Equal(t, "Total", rows[4][2])
	assert.Equal(t, "9122", rows[4][3])
}

// =============================================================================
// DELIVERY
// =============================================================================

func TestDirectoryDeliverer_WritesBothFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	publisher := report.NewPublisher(nil, nil, report.DirectoryDeliverer{Dir: dir})

	require.NoError(t, publisher.Deliver(context.Background(), sampleRun()))

	text, err := os.ReadFile(filepath.Join(dir, "Duty_Monthly_Report_2025_02.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(text), "1. Unknown User (ID: bob)")

	_, err = os.Stat(filepath.Join(dir, "Duty_Monthly_Report_2025_02.xlsx"))
	assert.NoError(t, err)
}

type failingDeliverer struct{}

func (failingDeliverer) Name() string                              { return "broken" }
func (failingDeliverer) Send(context.Context, report.Report) error { return errors.New("offline") }

func TestPublisher_OneFailure_OthersStillRun(t *testing.T) {
	dir := t.TempDir()
	publisher := report.NewPublisher(nil, nil, failingDeliverer{}, report.DirectoryDeliverer{Dir: dir})

	err := publisher.Deliver(context.Background(), sampleRun())
	assert.ErrorContains(t, err, "broken: offline")

	_, statErr := os.Stat(filepath.Join(dir, "Duty_Monthly_Report_2025_02.txt"))
	assert.NoError(t, statErr)
}

func TestDiscordDeliverer_EmbedWithFiles(t *testing.T) {
	var posted *discordgo.MessageSend
	var channel string
	deliverer := &report.DiscordDeliverer{
		ChannelID: "admin",
		Post: func(id string, m *discordgo.MessageSend) (*discordgo.Message, error) {
			channel, posted = id, m
			return &discordgo.Message{}, nil
		},
	}

	rep := report.Build(context.Background(), sampleRun(), nil)
	require.NoError(t, deliverer.Send(context.Background(), rep))

	assert.Equal(t, "admin", channel)
	require.Len(t, posted.Embeds, 1)
	fields := posted.Embeds[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "2", fields[0].Value)
	assert.Equal(t, "3", fields[1].Value)
	assert.Equal(t, "2h 32m", fields[2].Value)
	require.Len(t, posted.Files, 2)
	assert.Equal(t, "Duty_Monthly_Report_2025_02.txt", posted.Files[0].Name)
	assert.Equal(t, "Duty_Monthly_Report_2025_02.xlsx", posted.Files[1].Name)
}

func TestDiscordDeliverer_EmptyMonth_NoticeOnly(t *testing.T) {
	var posted *discordgo.MessageSend
	deliverer := &report.DiscordDeliverer{
		ChannelID: "admin",
		Post: func(_ string, m *discordgo.MessageSend) (*discordgo.Message, error) {
			posted = m
			return nil, nil
		},
	}

	rep := report.FromSnapshot(context.Background(), duty.Snapshot{Key: february}, nil, "", time.Time{})
	require.NoError(t, deliverer.Send(context.Background(), rep))

	assert.Empty(t, posted.Files)
	require.Len(t, posted.Embeds, 1)
	assert.Equal(t, "No data to report for the previous month.", posted.Embeds[0].Description)
}

func TestDiscordDeliverer_PostError_Wrapped(t *testing.T) {
	deliverer := &report.DiscordDeliverer{
		ChannelID: "admin",
		Post: func(string, *discordgo.MessageSend) (*discordgo.Message, error) {
			return nil, errors.New("missing access")
		},
	}

	err := deliverer.Send(context.Background(), report.Build(context.Background(), sampleRun(), nil))
	assert.ErrorContains(t, err, "post to channel admin: missing access")
}

func TestDiscordNames_PrefersNick(t *testing.T) {
	names := &report.DiscordNames{
		GuildID: "g",
		Member: func(_, userID string) (*discordgo.Member, error) {
			switch userID {
			case "nick":
				return &discordgo.Member{Nick: "Medic 1", User: &discordgo.User{Username: "m1"}}, nil
			case "plain":
				return &discordgo.Member{User: &discordgo.User{Username: "m2"}}, nil
			}
			return nil, errors.New("unknown member")
		},
	}
	ctx := context.Background()

	name, ok := names.DisplayName(ctx, "nick")
	assert.True(t, ok)
	assert.Equal(t, "Medic 1", name)

	name, ok = names.DisplayName(ctx, "plain")
	assert.True(t, ok)
	assert.Equal(t, "m2", name)

	_, ok = names.DisplayName(ctx, "gone")
	assert.False(t, ok)
}
