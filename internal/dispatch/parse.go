package dispatch

import (
	"strconv"

	"github.com/google/shlex"

	"github.com/banshee-data/lmsctl/internal/lmserr"
)

// ParseLine splits a command line using shell quoting rules. Tokens that
// parse as numbers become float64 arguments, everything else stays a string.
// An empty line yields an empty name.
func ParseLine(line string) (name string, args []any, err error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return "", nil, &lmserr.Error{Kind: lmserr.UsageError, Msg: "malformed command line", Err: err}
	}
	if len(tokens) == 0 {
		return "", nil, nil
	}
	args = make([]any, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			args = append(args, v)
			continue
		}
		args = append(args, tok)
	}
	return tokens[0], args, nil
}
