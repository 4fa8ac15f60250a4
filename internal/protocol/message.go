package protocol

import "strings"

type Command interface {
	Kind() CommandKind
}

// Empty means the peer disconnected or sent a blank line.
type Empty struct{}

func (Empty) Kind() CommandKind { return CmdEmpty }

type List struct{}

func (List) Kind() CommandKind { return CmdList }

type Download struct {
	Filename string
}

func (Download) Kind() CommandKind { return CmdDownload }

type Upload struct {
	Filename string
}

func (Upload) Kind() CommandKind { return CmdUpload }

type Unknown struct {
	Raw string
}

func (Unknown) Kind() CommandKind { return CmdUnknown }

// Parse turns one command line into a Command. It never fails: anything
// that is not a recognised keyword becomes Unknown.
func Parse(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Empty{}
	}

	if strings.EqualFold(line, "LIST") {
		return List{}
	}
	if name, ok := cutKeyword(line, "DOWNLOAD"); ok {
		return Download{Filename: name}
	}
	if name, ok := cutKeyword(line, "UPLOAD"); ok {
		return Upload{Filename: name}
	}

	return Unknown{Raw: line}
}

// Format renders a command back into the line a client sends.
func Format(cmd Command) string {
	switch c := cmd.(type) {
	case List:
		return "LIST"
	case Download:
		return "DOWNLOAD " + c.Filename
	case Upload:
		return "UPLOAD " + c.Filename
	case Unknown:
		return c.Raw
	default:
		return ""
	}
}

func cutKeyword(line, keyword string) (string, bool) {
	if len(line) <= len(keyword) || line[len(keyword)] != ' ' {
		return "", false
	}
	if !strings.EqualFold(line[:len(keyword)], keyword) {
		return "", false
	}
	return strings.TrimSpace(line[len(keyword)+1:]), true
}
