package main

import (
	"strconv"
	"strings"
)

type verb int

const (
	verbSearch verb = iota
	verbLogin
	verbLogout
	verbWhoami
	verbCheckIn
	verbList
	verbHelp
	verbQuit
	verbInvalid
)

// command is one parsed input line.
type command struct {
	verb  verb
	arg   string // search token, usher id or error text
	name  string // usher name for login
	order int    // guest_order for in
}

// parseCommand reads one line typed by the usher or a keyboard-wedge
// scanner.  Anything that is not a known command is a search token.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{verb: verbInvalid, arg: "empty input"}
	}
	switch strings.ToLower(fields[0]) {
	case "login":
		if len(fields) < 3 {
			return command{verb: verbInvalid, arg: "usage: login <id> <name>"}
		}
		return command{verb: verbLogin, arg: fields[1], name: strings.Join(fields[2:], " ")}
	case "logout":
		return command{verb: verbLogout}
	case "whoami":
		return command{verb: verbWhoami}
	case "in":
		if len(fields) != 2 {
			return command{verb: verbInvalid, arg: "usage: in <guest number>"}
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return command{verb: verbInvalid, arg: "guest number must be a positive integer"}
		}
		return command{verb: verbCheckIn, order: n}
	case "list":
		return command{verb: verbList}
	case "help", "?":
		return command{verb: verbHelp}
	case "quit", "exit":
		return command{verb: verbQuit}
	}
	return command{verb: verbSearch, arg: line}
}

const helpText = `commands:
  login <id> <name>   start an usher session
  logout              end the session
  whoami              show the session and today's tally
  in <n>              check in guest number n of the selected purchase
  list                redraw the selected purchase
  quit                leave
anything else is searched: a scanned QR code, a name or an email`
