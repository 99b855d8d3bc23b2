package discord

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/bwmarrin/discordgo"
)

const (
	colorReceipt    = 0x3498DB
	colorOrder      = 0xF1C40F
	colorSuccess    = 0x2ECC71
	colorFailure    = 0xE74C3C
	colorProcessing = 0xE67E22

	maxBreakdownLen  = 1000
	maxButtonsPerRow = 5

	statusPrefix = "**Status:**"

	glyphReceipt    = "🧾"
	glyphOrder      = "🛒"
	glyphProcessing = "⏳"
	glyphSuccess    = "✅"
	glyphFailure    = "❌"
)

var titleGlyphs = []string{glyphReceipt, glyphOrder, glyphProcessing, glyphSuccess, glyphFailure}

func receiptMessage(r *domain.Receipt, owner *domain.User, now time.Time) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title: glyphReceipt + " New receipt",
		Color: colorReceipt,
		Description: fmt.Sprintf("Receipt uploaded by **%s**.\n[View receipt image](%s)\n\n%s",
			owner.DisplayName(), r.ImageURL, statusLine("Pending review")),
		Image:     &discordgo.MessageEmbedImage{URL: r.ImageURL},
		Fields:    subjectFields(owner, now, "Receipt ID", r.ID),
		Timestamp: now.Format(time.RFC3339),
	}
	if r.IsMultiProduct() {
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Products", Value: formatBreakdown(r.Items)},
			&discordgo.MessageEmbedField{Name: "Total", Value: formatPoints(r.TotalPoints()), Inline: true},
		)
	} else if len(r.Items) == 1 {
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Product", Value: formatBreakdown(r.Items)},
		)
	}

	return &discordgo.MessageSend{
		Content:    "New receipt awaiting review",
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: receiptButtons(r),
	}
}

func orderMessage(o *domain.Order, owner *domain.User, now time.Time) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title: glyphOrder + " New order",
		Color: colorOrder,
		Description: fmt.Sprintf("Order placed by **%s**.\n\n%s",
			owner.DisplayName(), statusLine("Pending")),
		Fields:    subjectFields(owner, now, "Order ID", o.ID),
		Timestamp: now.Format(time.RFC3339),
	}
	for _, item := range o.Items {
		if item.Product.ImageURL != "" {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: item.Product.ImageURL}
			break
		}
	}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Products", Value: formatBreakdown(o.Items)},
		&discordgo.MessageEmbedField{Name: "Total", Value: formatPoints(o.TotalPoints), Inline: true},
	)

	return &discordgo.MessageSend{
		Content:    "New order to fulfil",
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: orderButtons(o),
	}
}

func subjectFields(owner *domain.User, now time.Time, idLabel, id string) []*discordgo.MessageEmbedField {
	email := owner.Email
	if email == "" {
		email = "n/a"
	}
	return []*discordgo.MessageEmbedField{
		{Name: "User", Value: owner.DisplayName(), Inline: true},
		{Name: "Email", Value: email, Inline: true},
		{Name: "Submitted", Value: fmt.Sprintf("<t:%d:f>", now.Unix()), Inline: true},
		{Name: idLabel, Value: id},
	}
}

func receiptButtons(r *domain.Receipt) []discordgo.MessageComponent {
	var buttons []discordgo.MessageComponent
	if total := r.TotalPoints(); total > 0 {
		buttons = append(buttons, discordgo.Button{
			Label:    fmt.Sprintf("Approve (%d pts)", total),
			Style:    discordgo.SuccessButton,
			CustomID: domain.Action{Kind: domain.ActionApproveReceipt, SubjectID: r.ID, Points: total}.CustomID(),
		})
	}
	if r.IsMultiProduct() {
		buttons = append(buttons, discordgo.Button{
			Label:    "Custom points",
			Style:    discordgo.PrimaryButton,
			CustomID: domain.Action{Kind: domain.ActionCustomPoints, SubjectID: r.ID}.CustomID(),
		})
	}
	buttons = append(buttons, discordgo.Button{
		Label:    "Reject",
		Style:    discordgo.DangerButton,
		CustomID: domain.Action{Kind: domain.ActionRejectReceipt, SubjectID: r.ID}.CustomID(),
	})
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func orderButtons(o *domain.Order) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			Label:    "Mark processing",
			Style:    discordgo.PrimaryButton,
			CustomID: domain.Action{Kind: domain.ActionProcessOrder, SubjectID: o.ID}.CustomID(),
		},
		discordgo.Button{
			Label:    "Mark complete",
			Style:    discordgo.SuccessButton,
			CustomID: domain.Action{Kind: domain.ActionCompleteOrder, SubjectID: o.ID}.CustomID(),
		},
	}}}
}

// customPointsMessage lists one button per point value, at most five per
// row, followed by a row holding Cancel.
func customPointsMessage(r *domain.Receipt, values []int) *discordgo.MessageSend {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, v := range values {
		row = append(row, discordgo.Button{
			Label:    fmt.Sprintf("%d pts", v),
			Style:    discordgo.PrimaryButton,
			CustomID: domain.Action{Kind: domain.ActionApproveCustom, SubjectID: r.ID, Points: v}.CustomID(),
		})
		if len(row) == maxButtonsPerRow {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			Label:    "Cancel",
			Style:    discordgo.SecondaryButton,
			CustomID: domain.Action{Kind: domain.ActionCancelCustom, SubjectID: r.ID}.CustomID(),
		},
	}})

	return &discordgo.MessageSend{
		Content: fmt.Sprintf("Select points to award for receipt `%s` (catalogue total %s):",
			r.ID, formatPoints(r.TotalPoints())),
		Components: rows,
	}
}

func formatBreakdown(items []domain.LineItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("• %s ×%d: %s", item.Product.Name, item.Quantity, formatPoints(item.Points())))
	}
	return truncate(strings.Join(lines, "\n"), maxBreakdownLen)
}

func formatPoints(n int) string {
	if n == 1 {
		return "1 point"
	}
	return fmt.Sprintf("%d points", n)
}

// truncate shortens s to at most limit runes, ending in an ellipsis when cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func statusLine(text string) string {
	return statusPrefix + " " + text
}

// setStatusLine replaces the status line of description, or appends one.
func setStatusLine(description, text string) string {
	lines := strings.Split(description, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), statusPrefix) {
			lines[i] = statusLine(text)
			return strings.Join(lines, "\n")
		}
	}
	if strings.TrimSpace(description) == "" {
		return statusLine(text)
	}
	return description + "\n\n" + statusLine(text)
}

// setTitleGlyph swaps a leading status glyph for glyph, or prepends it.
func setTitleGlyph(title, glyph string) string {
	rest := title
	for _, g := range titleGlyphs {
		if strings.HasPrefix(rest, g) {
			rest = strings.TrimSpace(strings.TrimPrefix(rest, g))
			break
		}
	}
	if rest == "" {
		return glyph
	}
	return glyph + " " + rest
}

// displayText is the status line shown for a display state.
func displayText(d domain.DisplayState, points int) string {
	switch d {
	case domain.DisplayApproved:
		return fmt.Sprintf("Approved (%d points)", points)
	case domain.DisplayRejected:
		return "Rejected"
	case domain.DisplayProcessing:
		return "Processing"
	case domain.DisplayCompleted:
		return "Completed"
	default:
		return "Pending"
	}
}

func isProcessingText(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "processing") || strings.Contains(lower, "awaiting")
}

func statusStyle(text string, success bool) (color int, glyph string) {
	switch {
	case isProcessingText(text):
		return colorProcessing, glyphProcessing
	case success:
		return colorSuccess, glyphSuccess
	default:
		return colorFailure, glyphFailure
	}
}

// disableComponents copies every actions row with all buttons disabled.
func disableComponents(components []discordgo.MessageComponent) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(components))
	for _, c := range components {
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			out = append(out, discordgo.ActionsRow{Components: disableButtons(row.Components)})
		case discordgo.ActionsRow:
			out = append(out, discordgo.ActionsRow{Components: disableButtons(row.Components)})
		default:
			out = append(out, c)
		}
	}
	return out
}

func disableButtons(components []discordgo.MessageComponent) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(components))
	for _, c := range components {
		switch b := c.(type) {
		case *discordgo.Button:
			cp := *b
			cp.Disabled = true
			out = append(out, cp)
		case discordgo.Button:
			b.Disabled = true
			out = append(out, b)
		default:
			out = append(out, c)
		}
	}
	return out
}
