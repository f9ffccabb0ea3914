package envpatch

import (
	"strings"

	"github.com/apparentlymart/go-shquot/shquot"
)

// Render produces a POSIX shell script exporting every variable the patch
// touches, with the values it takes in env (normally patch.Apply(base)).
func Render(p *Patch, env Env) string {
	var b strings.Builder
	for _, name := range p.Names() {
		value, ok := env[name]
		if !ok {
			continue
		}
		b.WriteString(shquot.POSIXShell([]string{"export", name + "=" + value}))
		b.WriteString("\n")
	}
	return b.String()
}
