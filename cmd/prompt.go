package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ask prints label and reads one line from in. EOF with no input returns "".
func ask(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question; anything but y/yes is a no.
func confirm(in *bufio.Reader, out io.Writer, question string) bool {
	ans, err := ask(in, out, question+" [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(ans)) {
	case "y", "yes":
		return true
	}
	return false
}
