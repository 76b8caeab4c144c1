package notifier

import (
	"strings"

	"BreakoutSentinel/internal/telemetry"
)

const helpText = "/status - account, positions and today's range\n/ledger - recent trading days\n/help - this message"

// NewCommandHandler answers operator commands from the published status.
func NewCommandHandler(board *telemetry.Board, opts FormatOptions) CommandHandler {
	return func(command string) string {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return ""
		}
		// Strip "@botname" suffixes used in group chats.
		cmd, _, _ := strings.Cut(fields[0], "@")
		switch cmd {
		case "/status":
			return FormatStatus(board.Snapshot(), opts)
		case "/ledger":
			return FormatLedger(board.Snapshot().Ledger, 10)
		case "/help", "/start":
			return helpText
		default:
			return ""
		}
	}
}
