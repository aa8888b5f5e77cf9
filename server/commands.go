package server

import "strings"

// commandHandler executes one verb for a session. args are the tokens that
// followed the verb, split on single spaces.
type commandHandler func(s *session, args []string)

// commandTable maps FTP verbs to their handlers. It is built once and only
// read afterwards, so every session shares it without locking.
var commandTable = buildCommandTable()

// stubVerbs are acknowledged with 202 and otherwise ignored.
var stubVerbs = []string{
	"ABOR", "ACCT", "ADAT", "ALLO", "APPE", "AUTH", "CCC", "CONF", "ENC",
	"EPRT", "EPSV", "HELP", "LANG", "LPRT", "LPSV", "MDTM", "MIC", "MKD",
	"MLSD", "MLST", "MODE", "NLST", "NOOP", "OPTS", "PBSZ", "REIN", "REST",
	"RMD", "RNFR", "RNTO", "SITE", "SMNT", "STAT", "STOU", "STRU",
}

func buildCommandTable() map[string]commandHandler {
	table := map[string]commandHandler{
		// Access control
		"USER": (*session).handleUSER,
		"PASS": (*session).handlePASS,
		"QUIT": (*session).handleQUIT,

		// Directories
		"PWD":  (*session).handlePWD,
		"XPWD": (*session).handlePWD,
		"CWD":  (*session).handleCWD,
		"CDUP": (*session).handleCDUP,

		// Files and transfers
		"LIST": (*session).handleLIST,
		"RETR": (*session).handleRETR,
		"STOR": (*session).handleSTOR,
		"DELE": (*session).handleDELE,

		// Transfer parameters
		"TYPE": (*session).handleTYPE,
		"PASV": (*session).handlePASV,
		"PORT": (*session).handlePORT,

		// Information
		"FEAT": (*session).handleFEAT,
		"SYST": (*session).handleSYST,
	}
	for _, verb := range stubVerbs {
		table[verb] = (*session).handleStub
	}
	return table
}

// firstArg returns the first argument, or "" when there is none.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// pathArg rejoins the arguments so file names containing spaces survive
// the tokenizer.
func pathArg(args []string) string {
	return strings.Join(args, " ")
}

func (s *session) handleStub(_ []string) {
	s.reply(202, "")
}
