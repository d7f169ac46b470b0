package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCredentialGuide explains where the application key pair comes from.
func ShowCredentialGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "APP-ONLY CREDENTIALS")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "tweetharvest authenticates as an application, not as a user.")
	fmt.Fprintln(w, "It needs the API key and API key secret of a developer app:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Open the developer portal and select your project's app")
	fmt.Fprintln(w, "  2. Go to 'Keys and tokens'")
	fmt.Fprintln(w, "  3. Under 'Consumer Keys', reveal or regenerate the API key and secret")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Either store them with 'tweetharvest auth login' or export them:")
	fmt.Fprintf(w, "  export %s=...\n", EnvAppKey)
	fmt.Fprintf(w, "  export %s=...\n", EnvAppSecret)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables take precedence over stored profiles.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
