package report

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	embedColor  = 0x0099ff
	noDataColor = 0xffa500
)

// PostFunc posts a message to a channel, usually through
// (*discordgo.Session).ChannelMessageSendComplex.
type PostFunc func(channelID string, m *discordgo.MessageSend) (*discordgo.Message, error)

// DiscordDeliverer posts the report to an admin channel: a summary embed
// with both files attached, or a short notice when the month is empty.
type DiscordDeliverer struct {
	ChannelID string
	Post      PostFunc
}

// NewDiscordDeliverer posts through an open discordgo session.
func NewDiscordDeliverer(session *discordgo.Session, channelID string) *DiscordDeliverer {
	return &DiscordDeliverer{
		ChannelID: channelID,
		Post: func(id string, m *discordgo.MessageSend) (*discordgo.Message, error) {
			return session.ChannelMessageSendComplex(id, m)
		},
	}
}

func (d *DiscordDeliverer) Name() string { return "discord" }

func (d *DiscordDeliverer) Send(_ context.Context, r Report) error {
	msg, err := DiscordMessage(r)
	if err != nil {
		return err
	}
	if _, err := d.Post(d.ChannelID, msg); err != nil {
		return fmt.Errorf("post to channel %s: %w", d.ChannelID, err)
	}
	return nil
}

// DiscordMessage builds the admin channel message for the report.
func DiscordMessage(r Report) (*discordgo.MessageSend, error) {
	period := fmt.Sprintf("%s %d", r.Key.Month, r.Key.Year)

	if r.Empty() {
		return &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       fmt.Sprintf("%s - %s", Title, period),
				Description: "No data to report for the previous month.",
				Color:       noDataColor,
			}},
		}, nil
	}

	files, err := Files(r)
	if err != nil {
		return nil, err
	}
	attachments := make([]*discordgo.File, 0, len(files))
	for _, f := range files {
		attachments = append(attachments, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}

	return &discordgo.MessageSend{
		Content: fmt.Sprintf("Monthly duty report for %s has been generated.", period),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       fmt.Sprintf("%s - %s", Title, period),
			Description: "Report for the previous month is attached.",
			Color:       embedColor,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Total Members", Value: strconv.Itoa(len(r.Rows)), Inline: true},
				{Name: "Total Shifts", Value: strconv.FormatInt(r.TotalShifts, 10), Inline: true},
				{Name: "Total Hours", Value: FormatDuration(r.TotalSeconds, false), Inline: true},
			},
			Timestamp: r.GeneratedAt.Format(time.RFC3339),
		}},
		Files: attachments,
	}, nil
}

// DiscordNames resolves display names from guild members: the nickname when
// set, the username otherwise.
type DiscordNames struct {
	GuildID string
	Member  func(guildID, userID string) (*discordgo.Member, error)
}

// NewDiscordNames looks members up through an open discordgo session.
func NewDiscordNames(session *discordgo.Session, guildID string) *DiscordNames {
	return &DiscordNames{
		GuildID: guildID,
		Member: func(g, u string) (*discordgo.Member, error) {
			return session.GuildMember(g, u)
		},
	}
}

func (n *DiscordNames) DisplayName(_ context.Context, personID string) (string, bool) {
	member, err := n.Member(n.GuildID, personID)
	if err != nil || member == nil {
		return "", false
	}
	if member.Nick != "" {
		return member.Nick, true
	}
	if member.User != nil && member.User.Username != "" {
		return member.User.Username, true
	}
	return "", false
}
