package agent

import "mnemora/types"

// Event is one message of a query stream: one Sources, any number of
// Tokens, then exactly one Done or Error.
type Event interface {
	Kind() string
	queryEvent()
}

type Sources struct {
	Sources []types.RetrievedSource
}

type Token struct {
	Content string
}

type Done struct{}

type Error struct {
	Message string
}

func (Sources) Kind() string { return "sources" }
func (Token) Kind() string   { return "token" }
func (Done) Kind() string    { return "done" }
func (Error) Kind() string   { return "error" }

func (Sources) queryEvent() {}
func (Token) queryEvent()   {}
func (Done) queryEvent()    {}
func (Error) queryEvent()   {}
