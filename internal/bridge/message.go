package bridge

import (
	"fmt"
	"unicode/utf8"
)

// Kind tags a Message with its origin.
type Kind uint8

const (
	// Raw is verbatim console input.
	Raw Kind = iota
	// Synthesized is one newline-terminated line of a reload script.
	Synthesized
)

func (k Kind) String() string {
	switch k {
	case Raw:
		return "raw"
	case Synthesized:
		return "synthesized"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// InvalidUTF8 replaces echoed bytes that are not valid UTF-8.
const InvalidUTF8 = "<invalid utf-8>"

// Message is one unit of input for the interpreter.
type Message struct {
	Kind Kind
	Data []byte
}

// RawMessage copies p into a Raw message.
func RawMessage(p []byte) Message {
	return Message{Kind: Raw, Data: append([]byte(nil), p...)}
}

// SynthesizedMessage builds a Synthesized message from one script line.
func SynthesizedMessage(line string) Message {
	return Message{Kind: Synthesized, Data: []byte(line)}
}

// Text returns the payload as a string when it is valid UTF-8.
func (m Message) Text() (string, bool) {
	if !utf8.Valid(m.Data) {
		return "", false
	}

	return string(m.Data), true
}

// Display returns the payload for echoing, or InvalidUTF8.
func (m Message) Display() string {
	if s, ok := m.Text(); ok {
		return s
	}

	return InvalidUTF8
}
