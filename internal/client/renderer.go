package client

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Renderer prints the conversation to a terminal.
type Renderer struct {
	out     io.Writer
	errOut  io.Writer
	name    string
	user    *color.Color
	bot     *color.Color
	dim     *color.Color
	failure *color.Color
}

// NewRenderer returns a renderer writing replies to out and notices to
// errOut. name labels the assistant's replies.
func NewRenderer(out, errOut io.Writer, name string, noColor bool) *Renderer {
	r := &Renderer{
		out:     out,
		errOut:  errOut,
		name:    name,
		user:    color.New(color.FgCyan, color.Bold),
		bot:     color.New(color.FgGreen, color.Bold),
		dim:     color.New(color.FgHiBlack),
		failure: color.New(color.FgRed),
	}
	if noColor {
		for _, c := range []*color.Color{r.user, r.bot, r.dim, r.failure} {
			c.DisableColor()
		}
	}
	return r
}

// Banner announces the connection target.
func (r *Renderer) Banner(url, clientID string) {
	fmt.Fprintln(r.errOut, r.dim.Sprintf("Connected to %s as %s", url, clientID))
	fmt.Fprintln(r.errOut, r.dim.Sprint("Type /help for commands."))
}

// Prompt prints the input prompt.
func (r *Renderer) Prompt() {
	fmt.Fprint(r.out, r.user.Sprint("you › "))
}

// Start opens an assistant reply.
func (r *Renderer) Start() {
	fmt.Fprint(r.out, r.bot.Sprintf("%s › ", r.name))
}

// Chunk prints one fragment of the reply as it arrives.
func (r *Renderer) Chunk(text string) {
	fmt.Fprint(r.out, text)
}

// End closes an assistant reply.
func (r *Renderer) End() {
	fmt.Fprintln(r.out)
}

// Info prints a notice.
func (r *Renderer) Info(format string, args ...any) {
	fmt.Fprintln(r.errOut, r.dim.Sprintf(format, args...))
}

// Error prints a failure.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.errOut, r.failure.Sprintf("error: %v", err))
}

// Help prints the command list.
func (r *Renderer) Help() {
	fmt.Fprintln(r.errOut, helpText)
}
