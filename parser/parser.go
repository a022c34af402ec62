package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/radishkv/radishkv/core"
)

// ErrParse wraps every argument-parsing failure so callers can distinguish
// "bad arguments" from other error classes with errors.Is.
var ErrParse = errors.New("parse error")

// Commands lists every command name the parser recognizes, in the order
// they're documented in spec.md §6 — used to build the "unrecognized
// command" help listing (spec.md §4.6, gating rule 1).
var Commands = []string{
	"SELECT", "DESELECT", "GET", "SET", "EXPIRE", "TTL", "DEL",
	"ZADD", "ZRANK", "ZRANGE", "EXIT",
}

// IsCommand reports whether cmd (already upper-cased by the caller) is a
// recognized command name.
func IsCommand(cmd string) bool {
	for _, c := range Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// SelectArgs is SELECT's parsed argument record.
type SelectArgs struct {
	DBName string
}

// GetArgs is GET's parsed argument record.
type GetArgs struct {
	Key string
}

// SetArgs is SET's parsed argument record. PXAT is the internal,
// replay-only form of an absolute expiry: the durability log writes SET
// lines with -PXAT instead of -EX/-PX so that replaying the log after a
// crash reconstructs the original expiry instant rather than restarting a
// relative countdown from recovery time (spec.md §9, core/dataset.go's
// setLogArgs).
type SetArgs struct {
	Key, Value string

	HasEX bool
	EX    int

	HasPX bool
	PX    int

	HasPXAT bool
	PXAT    int64

	NX, XX, KeepTTL bool
}

// ExpireArgs is EXPIRE's parsed argument record. PXAT is the internal,
// replay-only form of an absolute expiry, mirroring SetArgs' PXAT
// (spec.md §9, core/dataset.go's expireLogArgs): the durability log writes
// EXPIRE lines with `-PXAT <millis>` instead of the relative seconds
// argument, so replaying the log after a crash reconstructs the original
// expiry instant rather than restarting a countdown from recovery time.
type ExpireArgs struct {
	Key     string
	Seconds int

	HasPXAT bool
	PXAT    int64
}

// TTLArgs is TTL's parsed argument record.
type TTLArgs struct {
	Key string
}

// DelArgs is DEL's parsed argument record.
type DelArgs struct {
	Keys []string
}

// ZAddArgs is ZADD's parsed argument record.
type ZAddArgs struct {
	Key              string
	NX, XX, CH, INCR bool
	Pairs            []core.ScoreMember
}

// ZRankArgs is ZRANK's parsed argument record.
type ZRankArgs struct {
	Key, Member string
}

// ZRangeArgs is ZRANGE's parsed argument record.
type ZRangeArgs struct {
	Key        string
	Start      int
	Stop       int
	WithScores bool
}

// Parse dispatches tokens, the arguments that follow the command name on
// the line (cmd itself, already upper-cased by the caller), to the matching
// per-command parser and returns the typed argument record as interface{}. DESELECT and EXIT take no arguments and parse to
// nil.
func Parse(cmd string, tokens []string) (interface{}, error) {
	switch cmd {
	case "SELECT":
		return parseSelect(tokens)
	case "DESELECT", "EXIT":
		if len(tokens) != 0 {
			return nil, fmt.Errorf("%w: %s takes no arguments", ErrParse, cmd)
		}
		return nil, nil
	case "GET":
		return parseGet(tokens)
	case "SET":
		return parseSet(tokens)
	case "EXPIRE":
		return parseExpire(tokens)
	case "TTL":
		return parseTTL(tokens)
	case "DEL":
		return parseDel(tokens)
	case "ZADD":
		return parseZAdd(tokens)
	case "ZRANK":
		return parseZRank(tokens)
	case "ZRANGE":
		return parseZRange(tokens)
	default:
		return nil, fmt.Errorf("%w: unrecognized command %q", ErrParse, cmd)
	}
}

func parseSelect(tokens []string) (*SelectArgs, error) {
	if len(tokens) != 1 {
		return nil, fmt.Errorf("%w: SELECT requires exactly one argument: db_name", ErrParse)
	}
	return &SelectArgs{DBName: tokens[0]}, nil
}

func parseGet(tokens []string) (*GetArgs, error) {
	if len(tokens) != 1 {
		return nil, fmt.Errorf("%w: GET requires exactly one argument: key", ErrParse)
	}
	return &GetArgs{Key: tokens[0]}, nil
}

func parseSet(tokens []string) (*SetArgs, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("%w: SET requires at least key and value", ErrParse)
	}

	args := &SetArgs{Key: tokens[0], Value: tokens[1]}
	rest := tokens[2:]

	for i := 0; i < len(rest); i++ {
		switch strings.ToUpper(rest[i]) {
		case "-EX":
			if args.HasPX || args.HasPXAT {
				return nil, fmt.Errorf("%w: -EX is mutually exclusive with -PX/-PXAT", ErrParse)
			}
			i++
			if i >= len(rest) {
				return nil, fmt.Errorf("%w: -EX requires a seconds value", ErrParse)
			}
			sec, err := strconv.Atoi(rest[i])
			if err != nil {
				return nil, fmt.Errorf("%w: -EX value must be an integer", ErrParse)
			}
			args.HasEX, args.EX = true, sec
		case "-PX":
			if args.HasEX || args.HasPXAT {
				return nil, fmt.Errorf("%w: -PX is mutually exclusive with -EX/-PXAT", ErrParse)
			}
			i++
			if i >= len(rest) {
				return nil, fmt.Errorf("%w: -PX requires a milliseconds value", ErrParse)
			}
			ms, err := strconv.Atoi(rest[i])
			if err != nil {
				return nil, fmt.Errorf("%w: -PX value must be an integer", ErrParse)
			}
			args.HasPX, args.PX = true, ms
		case "-PXAT":
			if args.HasEX || args.HasPX {
				return nil, fmt.Errorf("%w: -PXAT is mutually exclusive with -EX/-PX", ErrParse)
			}
			i++
			if i >= len(rest) {
				return nil, fmt.Errorf("%w: -PXAT requires an absolute millisecond timestamp", ErrParse)
			}
			ms, err := strconv.ParseInt(rest[i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: -PXAT value must be an integer", ErrParse)
			}
			args.HasPXAT, args.PXAT = true, ms
		case "-NX":
			if args.XX {
				return nil, fmt.Errorf("%w: -NX and -XX are mutually exclusive", ErrParse)
			}
			args.NX = true
		case "-XX":
			if args.NX {
				return nil, fmt.Errorf("%w: -NX and -XX are mutually exclusive", ErrParse)
			}
			args.XX = true
		case "-KEEPTTL":
			args.KeepTTL = true
		default:
			return nil, fmt.Errorf("%w: unrecognized SET flag %q", ErrParse, rest[i])
		}
	}
	return args, nil
}

func parseExpire(tokens []string) (*ExpireArgs, error) {
	if len(tokens) == 3 && strings.EqualFold(tokens[1], "-PXAT") {
		ms, err := strconv.ParseInt(tokens[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: -PXAT value must be an integer", ErrParse)
		}
		return &ExpireArgs{Key: tokens[0], HasPXAT: true, PXAT: ms}, nil
	}
	if len(tokens) != 2 {
		return nil, fmt.Errorf("%w: EXPIRE requires key and seconds", ErrParse)
	}
	seconds, err := strconv.Atoi(tokens[1])
	if err != nil {
		return nil, fmt.Errorf("%w: seconds must be an integer", ErrParse)
	}
	return &ExpireArgs{Key: tokens[0], Seconds: seconds}, nil
}

func parseTTL(tokens []string) (*TTLArgs, error) {
	if len(tokens) != 1 {
		return nil, fmt.Errorf("%w: TTL requires exactly one argument: key", ErrParse)
	}
	return &TTLArgs{Key: tokens[0]}, nil
}

func parseDel(tokens []string) (*DelArgs, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: DEL requires at least one key", ErrParse)
	}
	return &DelArgs{Keys: tokens}, nil
}

// isFlagToken reports whether tok names a ZADD flag rather than a (possibly
// negative) score. Flags are letters after the dash (-NX, -CH, ...); a dash
// followed by a digit or '.' is a negative score literal. This is the same
// rule Python's argparse applies via its "looks like a negative number"
// check, which is why original_source/engine.py's ZADD grammar can accept
// negative scores alongside -NX/-XX/-CH/-INCR.
func isFlagToken(tok string) bool {
	if len(tok) < 2 || tok[0] != '-' {
		return false
	}
	c := tok[1]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func parseZAdd(tokens []string) (*ZAddArgs, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: ZADD requires a key", ErrParse)
	}

	args := &ZAddArgs{Key: tokens[0]}
	rest := tokens[1:]

	i := 0
	for i < len(rest) && isFlagToken(rest[i]) {
		switch strings.ToUpper(rest[i]) {
		case "-NX":
			if args.XX {
				return nil, fmt.Errorf("%w: -NX and -XX are mutually exclusive", ErrParse)
			}
			args.NX = true
		case "-XX":
			if args.NX {
				return nil, fmt.Errorf("%w: -NX and -XX are mutually exclusive", ErrParse)
			}
			args.XX = true
		case "-CH":
			args.CH = true
		case "-INCR":
			args.INCR = true
		default:
			return nil, fmt.Errorf("%w: unrecognized ZADD flag %q", ErrParse, rest[i])
		}
		i++
	}

	pairTokens := rest[i:]
	if len(pairTokens) == 0 || len(pairTokens)%2 != 0 {
		return nil, fmt.Errorf("%w: ZADD score/member arguments must come in pairs", ErrParse)
	}
	if args.INCR && len(pairTokens) != 2 {
		return nil, fmt.Errorf("%w: -INCR takes exactly one score/member pair", ErrParse)
	}

	pairs := make([]core.ScoreMember, 0, len(pairTokens)/2)
	for j := 0; j < len(pairTokens); j += 2 {
		score, err := strconv.ParseFloat(pairTokens[j], 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			return nil, fmt.Errorf("%w: ZADD score %q must be a finite number", ErrParse, pairTokens[j])
		}
		pairs = append(pairs, core.ScoreMember{Score: score, Member: pairTokens[j+1]})
	}
	args.Pairs = pairs
	return args, nil
}

func parseZRank(tokens []string) (*ZRankArgs, error) {
	if len(tokens) != 2 {
		return nil, fmt.Errorf("%w: ZRANK requires key and member", ErrParse)
	}
	return &ZRankArgs{Key: tokens[0], Member: tokens[1]}, nil
}

func parseZRange(tokens []string) (*ZRangeArgs, error) {
	if len(tokens) < 3 {
		return nil, fmt.Errorf("%w: ZRANGE requires key, start and stop", ErrParse)
	}
	start, err := strconv.Atoi(tokens[1])
	if err != nil {
		return nil, fmt.Errorf("%w: start must be an integer", ErrParse)
	}
	stop, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, fmt.Errorf("%w: stop must be an integer", ErrParse)
	}

	args := &ZRangeArgs{Key: tokens[0], Start: start, Stop: stop}
	for _, tok := range tokens[3:] {
		if strings.ToUpper(tok) != "-WITHSCORES" {
			return nil, fmt.Errorf("%w: unrecognized ZRANGE flag %q", ErrParse, tok)
		}
		args.WithScores = true
	}
	return args, nil
}
