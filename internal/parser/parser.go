package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/lexisched/lexisched/internal/domain"
)

const (
	frontPrefix = "F:"
	backPrefix  = "B:"
	notePrefix  = "N:"
)

type state int

const (
	seeking state = iota
	readingFront
	readingBack
	readingNote
)

// ParseFile reads a deck file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.CardContent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a deck from an io.Reader and extracts all cards. A card has an
// F: block (source language), a B: block (target language), and an optional
// N: block; blocks may span multiple lines. Cards are separated by a new F:
// line or an explicit "---" separator. Cards missing either the front or the
// back are skipped rather than failing the whole deck.
func Parse(r io.Reader) ([]domain.CardContent, error) {
	scanner := bufio.NewScanner(r)
	var cards []domain.CardContent
	var current domain.CardContent
	var block []string
	currentState := seeking

	closeBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch currentState {
		case readingFront:
			current.FrontText = content
		case readingBack:
			current.BackText = content
		case readingNote:
			current.Note = content
		}
		block = nil
	}

	finishCard := func() {
		closeBlock()
		if current.FrontText != "" && current.BackText != "" {
			cards = append(cards, current)
		}
		current = domain.CardContent{}
		currentState = seeking
	}

	stripPrefix := func(line, prefix string) string {
		content := line[len(prefix):]
		return strings.TrimPrefix(content, " ")
	}

	for scanner.Scan() {
		line := scanner.Text()

		isF := strings.HasPrefix(line, frontPrefix)
		isB := strings.HasPrefix(line, backPrefix)
		isN := strings.HasPrefix(line, notePrefix)

		if line == "---" {
			finishCard()
			continue
		}

		switch {
		case isF:
			if currentState != seeking { // a new front always starts a new card
				finishCard()
			}
			currentState = readingFront
			block = append(block, stripPrefix(line, frontPrefix))
		case isB:
			closeBlock()
			currentState = readingBack
			block = append(block, stripPrefix(line, backPrefix))
		case isN:
			closeBlock()
			currentState = readingNote
			block = append(block, stripPrefix(line, notePrefix))
		default:
			if currentState != seeking {
				block = append(block, line)
			}
		}
	}

	finishCard() // finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}
