package session

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/neoxalle/nx/internal/application"
	"github.com/neoxalle/nx/internal/domain"
)

const scoreBarWidth = 20

type RenderOptions struct {
	Now time.Time
}

func renderHistory(records []domain.SessionRecord, stats application.HistoryStats, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("NeoXalle Session History"),
		s.header.Render(statsLine(stats)),
	}

	if len(records) == 0 {
		lines = append(lines, s.empty.Render("No sessions recorded yet."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, record := range records {
		lines = append(lines, s.section.Render(renderRecord(record, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func statsLine(stats application.HistoryStats) string {
	fastest := "n/a"
	if stats.HasFastestReaction {
		fastest = fmt.Sprintf("%d ms (pod %d)", stats.FastestReactionMs, stats.FastestReactionSlave)
	}
	return fmt.Sprintf("games: %d  presses: %d  fastest reaction: %s", stats.TotalGames, stats.TotalPresses, fastest)
}

func renderRecord(record domain.SessionRecord, opts RenderOptions, s styles) string {
	title := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.mode.Render(record.GameType.Label()),
		" ",
		s.podMeta.Render(fmt.Sprintf("%s, %s, %s", playersLabel(record.Players), durationLabel(record.DurationSec), formatPlayedAt(record.Timestamp, opts.Now))),
	)

	parts := []string{title}
	parts = append(parts, scoreLines(record, s)...)
	parts = append(parts, s.header.Render("id "+record.ID))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Result draws the summary shown when a session ends.
func Result(record domain.SessionRecord) string {
	s := newStyles()
	lines := []string{
		s.title.Render(fmt.Sprintf("%s finished", record.GameType.Label())),
		s.header.Render(fmt.Sprintf("%s, %s", playersLabel(record.Players), durationLabel(record.DurationSec))),
	}
	lines = append(lines, scoreLines(record, s)...)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func scoreLines(record domain.SessionRecord, s styles) []string {
	if len(record.Scores) == 0 {
		return []string{s.empty.Render("no scores")}
	}

	top := 0
	for _, score := range record.Scores {
		top = max(top, score)
	}

	ids := slices.Sorted(maps.Keys(record.Scores))
	lines := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		meta := fmt.Sprintf("%d", record.Scores[id])
		if ms, ok := record.ReactionMs[id]; ok {
			meta = fmt.Sprintf("%d ms", ms)
		}
		line := lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.podKey.Render(fmt.Sprintf("pod %-3d", id)),
			" ",
			renderScoreBar(record.Scores[id], top, scoreBarWidth, s),
			" ",
			s.detail.Render(meta),
		)
		if record.HasWinner && record.Winner == id {
			line += " " + s.winner.Render("winner")
		}
		lines = append(lines, line)
	}
	if !record.HasWinner {
		lines = append(lines, s.empty.Render("no winner"))
	}
	return lines
}

func renderScoreBar(score, top, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := 0
	if top > 0 {
		filled = int(math.Round(float64(width) * float64(score) / float64(top)))
	}
	filled = min(max(filled, 0), width)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

// Roster draws one line per known pod.
func Roster(slaves []domain.SlaveInfo) string {
	s := newStyles()
	connected := 0
	for _, slave := range slaves {
		if slave.Connected {
			connected++
		}
	}

	lines := []string{
		s.title.Render("NeoXalle Pods"),
		s.header.Render(fmt.Sprintf("pods: %d connected of %d", connected, len(slaves))),
	}
	if len(slaves) == 0 {
		lines = append(lines, s.empty.Render("The hub reported no pods."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, slave := range slaves {
		state := s.offline.Render("offline")
		if slave.Connected {
			state = s.online.Render("online ")
		}
		line := lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.podKey.Render(fmt.Sprintf("pod %-3d", slave.ID)),
			" ",
			state,
			" ",
			s.podMeta.Render(addressLabel(slave.Address)),
		)
		if slave.HasResponse {
			line += " " + s.detail.Render(fmt.Sprintf("last press %d ms", slave.LastResponseMs))
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// Board is the single status line redrawn while a session runs.
func Board(view application.View) string {
	s := newStyles()
	parts := []string{s.mode.Render(view.Mode.Label())}

	switch view.Phase {
	case application.PhasePlaying:
		parts = append(parts, s.detail.Render(fmt.Sprintf("%ds left", view.RemainingSec)), s.header.Render(fmt.Sprintf("round %d", view.Round)))
	case application.PhaseReactionReady:
		parts = append(parts, s.detail.Render("ready"))
	case application.PhaseReactionCountdown:
		parts = append(parts, s.detail.Render(fmt.Sprintf("%d...", view.Countdown)))
	case application.PhaseReactionWait:
		parts = append(parts, s.detail.Render("wait for it"))
	case application.PhaseReacting:
		parts = append(parts, s.lit.Render("GO"))
	default:
		parts = append(parts, s.header.Render(string(view.Phase)))
	}

	if len(view.Lit) > 0 {
		parts = append(parts, s.lit.Render("lit "+idList(view.Lit)))
	}

	ids := slices.Clone(view.Participants)
	slices.Sort(ids)
	scores := make([]string, 0, len(ids))
	for _, id := range ids {
		if ms, ok := view.ReactionMs[id]; ok {
			scores = append(scores, fmt.Sprintf("%d:%dms", id, ms))
			continue
		}
		scores = append(scores, fmt.Sprintf("%d:%d", id, view.Scores[id]))
	}
	if len(scores) > 0 {
		parts = append(parts, s.podKey.Render(strings.Join(scores, " ")))
	}

	if view.LinkStatus != "" && view.LinkStatus != "connected" {
		parts = append(parts, s.warning.Render("["+view.LinkStatus+"]"))
	}

	return strings.Join(parts, "  ")
}

func idList(ids []domain.SlaveID) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	out := make([]string, 0, len(sorted))
	for _, id := range sorted {
		out = append(out, id.String())
	}
	return strings.Join(out, ",")
}

func playersLabel(players int) string {
	if players == 1 {
		return "1 player"
	}
	return fmt.Sprintf("%d players", players)
}

func durationLabel(sec int) string {
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	return (time.Duration(sec) * time.Second).String()
}

func addressLabel(address string) string {
	if strings.TrimSpace(address) == "" {
		return "-"
	}
	return address
}

func formatPlayedAt(playedAt, now time.Time) string {
	if playedAt.IsZero() {
		return "unknown time"
	}
	if now.IsZero() {
		return playedAt.Format(time.RFC3339)
	}

	elapsed := now.Sub(playedAt)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		minutes := int(elapsed.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case elapsed < 24*time.Hour:
		hours := int(elapsed.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return playedAt.Format("15:04 on 02 Jan")
	}
}
