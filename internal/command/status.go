package command

// Status is the classified outcome carried by a build notification.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusOther
)

// ClassifyStatus maps a raw status string to a Status.
// Only the exact strings "SUCCESS" and "FAILURE" are recognised; everything
// else, including the empty string, is StatusOther.
func ClassifyStatus(s string) Status {
	switch s {
	case "SUCCESS":
		return StatusSuccess
	case "FAILURE":
		return StatusFailure
	default:
		return StatusOther
	}
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	default:
		return "OTHER"
	}
}
