// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package pgn provides a streaming PGN parser that yields, for each game
// in a concatenated stream, its tag headers, its move list, and one FEN
// snapshot per ply.
//
// The parser is tolerant per game: a game with no moves or an illegal
// SAN move fails with a per-game error and the stream continues with the
// next game. Only invalid UTF-8 aborts the whole stream; callers feeding
// Windows-1252 exports must pre-normalize the bytes.
//
// Move legality and FEN generation are delegated to notnil/chess; this
// package owns the stream splitting, header parsing, and movetext
// tokenization (comments, variations, and NAGs are skipped).
package pgn

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/notnil/chess"

	cerrors "github.com/chessmate/chessmate/internal/errors"
)

// Position is one half-move snapshot of a parsed game.
type Position struct {
	// Ply is the 1-based half-move index.
	Ply int

	// MoveNumber is the full-move number of the resulting position.
	MoveNumber int

	// SideToMove is "white" or "black": the side to move in FEN.
	SideToMove string

	// SAN is the move that produced this position.
	SAN string

	// FEN is the 6-field snapshot after the move was played.
	FEN string
}

// Game is one fully parsed game from a PGN stream.
type Game struct {
	// Index is the 1-based position of the game within the stream.
	Index int

	// Headers holds the tag pairs, e.g. Headers["White"].
	Headers map[string]string

	// Positions holds one entry per ply, in playing order.
	Positions []Position

	// Result is the terminating result: 1-0, 0-1, 1/2-1/2, or *.
	Result string

	// PGN is the raw text of this game as read from the stream.
	PGN string
}

// Scanner streams games out of a PGN byte stream that may contain many
// concatenated games separated by blank lines.
//
// Usage:
//
//	sc := pgn.NewScanner(r)
//	for sc.Scan() {
//	    game, err := sc.Game()
//	    if err != nil {
//	        // per-game failure (NoMovesError, IllegalMoveError); continue
//	        continue
//	    }
//	    ...
//	}
//	if err := sc.Err(); err != nil {
//	    // stream-fatal failure (ErrBadEncoding)
//	}
type Scanner struct {
	r       *bufio.Reader
	index   int
	pending string // lookahead line pushed back by the chunker
	havePnd bool

	game    *Game
	gameErr error
	err     error
}

// NewScanner creates a Scanner over r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Scan advances to the next game in the stream. It returns false at end
// of stream or on a stream-fatal error (see Err).
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	raw, ok := s.nextChunk()
	if !ok || s.err != nil {
		return false
	}
	s.index++
	s.game, s.gameErr = parseGame(s.index, raw)
	return true
}

// Game returns the game parsed by the last Scan, or the per-game error
// that made it unusable. Per-game errors never stop the stream.
func (s *Scanner) Game() (*Game, error) {
	return s.game, s.gameErr
}

// Err returns the stream-fatal error, if any. Per-game errors are
// reported by Game instead.
func (s *Scanner) Err() error { return s.err }

// readLine returns the next line, honoring pushback, and validates UTF-8.
func (s *Scanner) readLine() (string, bool) {
	if s.havePnd {
		s.havePnd = false
		return s.pending, true
	}
	line, err := s.r.ReadString('\n')
	if err != nil && err != io.EOF {
		s.err = fmt.Errorf("read pgn stream: %w", err)
		return "", false
	}
	if line != "" {
		if !utf8.ValidString(line) {
			s.err = cerrors.ErrBadEncoding
			return "", false
		}
		return strings.TrimRight(line, "\r\n"), true
	}
	if err != nil {
		return "", false
	}
	return "", true
}

func (s *Scanner) unreadLine(line string) {
	s.pending = line
	s.havePnd = true
}

// nextChunk reads one game's worth of text: a tag section followed by
// movetext. A '[' line after movetext has begun starts the next game.
// Brace depth is tracked so multi-line comments cannot split a game.
func (s *Scanner) nextChunk() (string, bool) {
	var b strings.Builder
	inMoves := false
	braceDepth := 0

	for {
		line, ok := s.readLine()
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if inMoves && braceDepth == 0 {
				break
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			continue
		}

		if strings.HasPrefix(trimmed, "[") && braceDepth == 0 {
			if inMoves {
				s.unreadLine(line)
				break
			}
		} else {
			inMoves = true
			braceDepth += strings.Count(line, "{") - strings.Count(line, "}")
			if braceDepth < 0 {
				braceDepth = 0
			}
		}

		b.WriteString(line)
		b.WriteByte('\n')
	}

	raw := strings.TrimSpace(b.String())
	if raw == "" {
		return "", false
	}
	return raw + "\n", s.err == nil
}

// parseGame turns one raw chunk into a Game or a per-game error.
func parseGame(index int, raw string) (*Game, error) {
	headers, movetext := splitHeaders(raw)

	sans, result := tokenizeMovetext(movetext)
	if result == "" {
		result = headers["Result"]
	}
	if result == "" {
		result = "*"
	}

	if len(sans) == 0 {
		return nil, &cerrors.NoMovesError{Game: index}
	}

	pos, err := replay(index, headers, sans)
	if err != nil {
		return nil, err
	}

	return &Game{
		Index:     index,
		Headers:   headers,
		Positions: pos,
		Result:    result,
		PGN:       raw,
	}, nil
}

// splitHeaders separates the tag section from the movetext.
func splitHeaders(raw string) (map[string]string, string) {
	headers := make(map[string]string)
	var moves strings.Builder

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if key, value, ok := parseTagPair(trimmed); ok {
			headers[key] = value
			continue
		}
		moves.WriteString(line)
		moves.WriteByte('\n')
	}
	return headers, moves.String()
}

// parseTagPair parses a `[Key "Value"]` line.
func parseTagPair(line string) (string, string, bool) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", "", false
	}
	body := line[1 : len(line)-1]
	sp := strings.IndexAny(body, " \t")
	if sp < 0 {
		return "", "", false
	}
	key := body[:sp]
	rest := strings.TrimSpace(body[sp+1:])
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", "", false
	}
	value := strings.ReplaceAll(rest[1:len(rest)-1], `\"`, `"`)
	return key, value, true
}

// Result tokens that terminate movetext.
var resultTokens = map[string]bool{
	"1-0": true, "0-1": true, "1/2-1/2": true, "*": true,
}

// tokenizeMovetext extracts SAN tokens from movetext, skipping `{...}`
// comments, `;` rest-of-line comments, `(...)` variations at any
// nesting, `$n` numeric annotations, and move numbers. Suffix
// annotations (!, ?, !?, ?!) are stripped from moves.
func tokenizeMovetext(movetext string) (sans []string, result string) {
	parenDepth := 0
	inComment := false

	for _, line := range strings.Split(movetext, "\n") {
		i := 0
		for i < len(line) {
			c := line[i]

			if inComment {
				if c == '}' {
					inComment = false
				}
				i++
				continue
			}

			switch {
			case c == '{':
				inComment = true
				i++
			case c == ';':
				i = len(line) // rest-of-line comment
			case c == '(':
				parenDepth++
				i++
			case c == ')':
				if parenDepth > 0 {
					parenDepth--
				}
				i++
			case c == ' ' || c == '\t':
				i++
			default:
				start := i
				for i < len(line) && line[i] != ' ' && line[i] != '\t' &&
					line[i] != '{' && line[i] != '(' && line[i] != ')' && line[i] != ';' {
					i++
				}
				tok := line[start:i]
				if parenDepth > 0 {
					continue
				}
				if san, res, keep := classifyToken(tok); keep {
					sans = append(sans, san)
				} else if res != "" {
					result = res
				}
			}
		}
	}
	return sans, result
}

// classifyToken decides whether a movetext token is a SAN move, a game
// terminator, or noise (move number, NAG, annotation glyph).
func classifyToken(tok string) (san string, result string, keep bool) {
	if resultTokens[tok] {
		return "", tok, false
	}
	if strings.HasPrefix(tok, "$") {
		return "", "", false
	}

	// Move numbers: "1.", "1...", and glued forms like "12.e4".
	j := 0
	for j < len(tok) && tok[j] >= '0' && tok[j] <= '9' {
		j++
	}
	if j > 0 {
		if j == len(tok) {
			return "", "", false
		}
		if tok[j] == '.' {
			for j < len(tok) && tok[j] == '.' {
				j++
			}
			tok = tok[j:]
		} else if resultTokens[tok] {
			return "", tok, false
		}
	}

	tok = strings.TrimRight(tok, "!?")
	if tok == "" || tok == "." || tok == "..." {
		return "", "", false
	}
	return tok, "", true
}

// replay applies the SAN list from the game's starting position and
// records one snapshot per ply. The starting position is the standard
// initial position unless the headers carry a FEN tag.
func replay(index int, headers map[string]string, sans []string) ([]Position, error) {
	var opts []func(*chess.Game)
	if fen := headers["FEN"]; fen != "" {
		opt, err := chess.FEN(fen)
		if err != nil {
			return nil, &cerrors.IllegalMoveError{Game: index, Ply: 0, SAN: "FEN " + fen}
		}
		opts = append(opts, opt)
	}

	game := chess.NewGame(opts...)
	positions := make([]Position, 0, len(sans))

	for i, san := range sans {
		if err := game.MoveStr(san); err != nil {
			return nil, &cerrors.IllegalMoveError{Game: index, Ply: i + 1, SAN: san}
		}
		fen := game.Position().String()
		side, moveNo := fenSideAndMove(fen)
		positions = append(positions, Position{
			Ply:        i + 1,
			MoveNumber: moveNo,
			SideToMove: side,
			SAN:        san,
			FEN:        fen,
		})
	}
	return positions, nil
}

// fenSideAndMove extracts the side to move and full-move number from a
// 6-field FEN string.
func fenSideAndMove(fen string) (string, int) {
	fields := strings.Fields(fen)
	side := "white"
	moveNo := 1
	if len(fields) >= 2 && fields[1] == "b" {
		side = "black"
	}
	if len(fields) >= 6 {
		if n, err := strconv.Atoi(fields[5]); err == nil {
			moveNo = n
		}
	}
	return side, moveNo
}

// Tag convenience accessors used by the ingestion controller.

// Header returns the named tag or "".
func (g *Game) Header(key string) string { return g.Headers[key] }

// WhiteName and BlackName return the player tags, with "?" and empty
// normalized to "Unknown".
func (g *Game) WhiteName() string { return playerName(g.Headers["White"]) }

// BlackName returns the black player tag, normalized like WhiteName.
func (g *Game) BlackName() string { return playerName(g.Headers["Black"]) }

func playerName(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == "?" {
		return "Unknown"
	}
	return tag
}

// Elo returns the integer value of an Elo tag, or nil when missing or
// non-numeric ("?" is common in TWIC exports).
func (g *Game) Elo(key string) *int {
	v := strings.TrimSpace(g.Headers[key])
	if v == "" || v == "?" || v == "-" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// String implements fmt.Stringer for log lines.
func (g *Game) String() string {
	return fmt.Sprintf("game %d: %s - %s (%d plies, %s)",
		g.Index, g.WhiteName(), g.BlackName(), len(g.Positions), g.Result)
}
