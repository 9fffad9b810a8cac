package training

import (
	"fmt"
	"io"
	"strings"
)

// Stream overwrites the current console line with msg.
func Stream(w io.Writer, msg string) {
	fmt.Fprintf(w, "\r%s", msg)
}

// TableColumn is one heading/value pair of a SimpleTable.
type TableColumn struct {
	Heading string
	Value   string
}

// SimpleTable prints a one-row bordered table. Each heading and value is
// centered against the other so that both fill the column width.
//
//	+-----------+------------+
//	| Steps     | Batch Size |
//	+-----------+------------+
//	| 10k Steps |     32     |
//	+-----------+------------+
func SimpleTable(w io.Writer, columns []TableColumn) {
	if len(columns) == 0 {
		return
	}

	var border, head, body strings.Builder
	for _, col := range columns {
		heading, value := col.Heading, col.Value
		pad := len(heading) - len(value)
		if pad < 0 {
			heading = center(heading, -pad)
		} else {
			value = center(value, pad)
		}

		cell := fmt.Sprintf("| %s ", heading)
		border.WriteString("+" + strings.Repeat("-", len(cell)-1))
		head.WriteString(cell)
		body.WriteString(fmt.Sprintf("| %s ", value))
	}
	border.WriteString("+")
	head.WriteString("|")
	body.WriteString("|")

	fmt.Fprintln(w, border.String())
	fmt.Fprintln(w, head.String())
	fmt.Fprintln(w, border.String())
	fmt.Fprintln(w, body.String())
	fmt.Fprintln(w, border.String())
	fmt.Fprintln(w, " ")
}

func center(s string, pad int) string {
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}
