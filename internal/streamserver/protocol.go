package streamserver

// controlFrame is a JSON text message a client may send instead of a
// binary score frame. Type selects which control operation is requested;
// the remaining fields are interpreted according to Type.
type controlFrame struct {
	Type    string `json:"type"`
	Grammar string `json:"grammar,omitempty"`
}

const (
	controlSelectFSG = "select_fsg"
	controlFinish    = "finish"
)

// hypothesisMessage is sent back to the client after every processed
// binary frame, carrying the current best partial hypothesis.
type hypothesisMessage struct {
	Type  string `json:"type"`
	Frame int    `json:"frame"`
	Hyp   string `json:"hyp"`
	Score int32  `json:"score"`
	Final bool   `json:"final"`
}

// segmentMessage is one word's timing and score, as sent in a
// resultMessage's Segments slice.
type segmentMessage struct {
	Word string `json:"word"`
	SF   int    `json:"sf"`
	EF   int    `json:"ef"`
	AScr int32  `json:"ascr"`
	LScr int32  `json:"lscr"`
}

// resultMessage is sent once, in response to a "finish" control frame.
type resultMessage struct {
	Type     string           `json:"type"`
	Hyp      string           `json:"hyp"`
	Score    int32            `json:"score"`
	Frames   int              `json:"frames"`
	Segments []segmentMessage `json:"segments"`
}

// errorMessage reports a fatal per-connection error to the client before
// the connection is closed.
type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

const (
	messageTypeHypothesis = "hyp"
	messageTypeResult     = "result"
	messageTypeError      = "error"
)
