package durability

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mshaverdo/assert"

	"github.com/radishkv/radishkv/core"
	"github.com/radishkv/radishkv/parser"
)

// replay reads one command per line from r and applies each to ds,
// returning the count applied. Only the commands the log ever contains —
// SET, EXPIRE, DEL, ZADD, plus the DEL lazy expiry synthesizes — are valid
// input; anything else means the log was corrupted or hand-edited. Each line
// carries the three-field prefix spec.md §6 describes (timestamp,
// dataset-name, COMMAND); replay skips the first two fields and hands
// COMMAND plus the remaining args to C4, the same way
// `original_source/engine.py`'s `restore()` does
// `' '.join(line.strip().split()[3:])` before reparsing.
func replay(ds *core.Dataset, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens, err := parser.Tokenize(line)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", count+1, err)
		}
		if len(tokens) < 3 {
			continue
		}
		tokens = tokens[2:] // drop timestamp, dataset-name

		cmd := strings.ToUpper(tokens[0])
		parsed, err := parser.Parse(cmd, tokens[1:])
		if err != nil {
			return count, fmt.Errorf("line %d: %w", count+1, err)
		}

		if err := apply(ds, cmd, parsed); err != nil {
			return count, fmt.Errorf("line %d: %w", count+1, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scanning log: %w", err)
	}
	return count, nil
}

func apply(ds *core.Dataset, cmd string, parsed interface{}) error {
	switch cmd {
	case "SET":
		a := parsed.(*parser.SetArgs)
		opts := core.SetOptions{}
		if a.HasPXAT {
			opts.HasExpire = true
			opts.ExpireAt = time.UnixMilli(a.PXAT)
		}
		ds.Set(a.Key, a.Value, opts)
		return nil
	case "EXPIRE":
		a := parsed.(*parser.ExpireArgs)
		if a.HasPXAT {
			ds.ExpireAt(a.Key, time.UnixMilli(a.PXAT))
		} else {
			ds.Expire(a.Key, a.Seconds)
		}
		return nil
	case "DEL":
		a := parsed.(*parser.DelArgs)
		ds.Del(a.Keys)
		return nil
	case "ZADD":
		a := parsed.(*parser.ZAddArgs)
		_, err := ds.ZAdd(a.Key, a.Pairs, core.ZAddOptions{CH: a.CH, INCR: a.INCR})
		return err
	default:
		assert.True(false, "unexpected command in durability log: "+cmd)
		return nil
	}
}
