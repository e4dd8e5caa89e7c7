package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/davidkendallcasey/cuecard/internal/domain"
)

const (
	frontPrefix = "F:"
	backPrefix  = "B:"
	titlePrefix = "# "
)

type state int

const (
	seeking state = iota
	readingFront
	readingBack
)

// Deck is the parsed content of one deck file: an optional title (the first
// `# ` heading) and the cards it holds. Cards carry content only; identity
// and scheduling fields are filled in by the importer.
type Deck struct {
	Title string
	Cards []domain.Card
}

// ParseFile reads a deck file from the given path.
func ParseFile(path string) (Deck, error) {
	file, err := os.Open(path)
	if err != nil {
		return Deck{}, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a deck from an io.Reader. A card starts at an `F:` line, its
// back at a `B:` line; both may continue over following plain lines. A
// `---` line or a new `F:` line finishes the current card. Cards without a
// front are dropped.
func Parse(r io.Reader) (Deck, error) {
	scanner := bufio.NewScanner(r)
	var deck Deck
	var currentCard domain.Card
	var currentBlock []string
	currentState := seeking

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.Join(currentBlock, "\n")
		switch currentState {
		case readingFront:
			currentCard.Front = content
		case readingBack:
			currentCard.Back = content
		}
		currentBlock = nil
	}

	finishCard := func() {
		flushBlock()
		if currentCard.Front != "" {
			deck.Cards = append(deck.Cards, currentCard)
		}
		currentCard = domain.Card{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if deck.Title == "" && currentState == seeking && strings.HasPrefix(line, titlePrefix) {
			deck.Title = strings.TrimSpace(line[len(titlePrefix):])
			continue
		}

		isFront := strings.HasPrefix(line, frontPrefix)
		isBack := strings.HasPrefix(line, backPrefix)

		if line == "---" {
			finishCard()
			continue
		}

		if isFront || isBack {
			flushBlock()

			if isFront {
				if currentState != seeking { // a new front always starts a new card
					finishCard()
				}
				currentState = readingFront
				currentBlock = append(currentBlock, trimPrefix(line, frontPrefix))
			} else {
				currentState = readingBack
				currentBlock = append(currentBlock, trimPrefix(line, backPrefix))
			}
		} else if currentState != seeking {
			currentBlock = append(currentBlock, line)
		}
	}

	finishCard() // finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return Deck{}, err
	}

	return deck, nil
}

func trimPrefix(line, prefix string) string {
	content := line[len(prefix):]
	if strings.HasPrefix(content, " ") {
		content = content[1:]
	}
	return content
}
