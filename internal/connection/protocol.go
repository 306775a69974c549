package connection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/keepmind9/relaybot/internal/message"
)

// Records of the reference line protocol
const (
	recordText    = "TEXT"
	recordNewNick = "NEWNICK"
	recordJoin    = "JOIN"
	recordQuit    = "QUIT"
	recordPing    = "PING"
	recordPong    = "PONG"
	recordNick    = "NICK"
)

// ErrUnknownRecord is returned for lines that do not match the grammar
var ErrUnknownRecord = errors.New("unknown record")

// IsPing reports whether line is a keep-alive request
func IsPing(line string) bool {
	return strings.TrimRight(line, "\r") == recordPing
}

// ParseLine turns one wire record into a typed event owned by origin.
//
//	TEXT <nick>: <text>
//	NEWNICK <old>: <new>
//	JOIN <nick>
//	QUIT <nick>[: <reason>]
func ParseLine(origin message.Sender, line string) (message.Message, error) {
	line = strings.TrimRight(line, "\r")
	keyword, rest, _ := strings.Cut(line, " ")

	switch keyword {
	case recordText:
		nick, text, ok := strings.Cut(rest, ": ")
		if !ok {
			nick, ok = strings.CutSuffix(rest, ":")
		}
		if !ok || nick == "" {
			return nil, fmt.Errorf("%w: malformed TEXT record %q", ErrUnknownRecord, line)
		}
		return message.NewText(origin, nick, text), nil

	case recordNewNick:
		oldNick, newNick, ok := strings.Cut(rest, ": ")
		if !ok || oldNick == "" || newNick == "" {
			return nil, fmt.Errorf("%w: malformed NEWNICK record %q", ErrUnknownRecord, line)
		}
		return message.NewNickChange(origin, oldNick, newNick), nil

	case recordJoin:
		nick := strings.TrimSpace(rest)
		if nick == "" {
			return nil, fmt.Errorf("%w: JOIN without nick", ErrUnknownRecord)
		}
		return message.NewUserJoined(origin, nick), nil

	case recordQuit:
		nick, reason, _ := strings.Cut(rest, ": ")
		nick = strings.TrimSpace(nick)
		if nick == "" {
			return nil, fmt.Errorf("%w: QUIT without nick", ErrUnknownRecord)
		}
		return message.NewUserLeft(origin, nick, reason), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownRecord, line)
}

// EncodeLines renders an outbound message as wire records without terminators.
// Text is split into one record per line, Raw passes through unchanged and
// every other kind becomes a single TEXT record.
func EncodeLines(msg message.Message) []string {
	switch msg.Kind() {
	case message.KindRaw:
		return []string{msg.Text()}
	case message.KindText:
		parts := strings.Split(msg.Text(), "\n")
		lines := make([]string, 0, len(parts))
		for _, part := range parts {
			lines = append(lines, recordText+" "+strings.TrimRight(part, "\r"))
		}
		return lines
	default:
		flat := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(msg.Text())
		return []string{recordText + " " + flat}
	}
}

// loginRecord announces the bot's nickname after connecting
func loginRecord(nick string) string {
	return recordNick + " " + nick
}
