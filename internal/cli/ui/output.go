package ui

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/mediafirewall/persona-voice/internal/apperr"
)

var (
	// Color definitions for terminal output
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
	dimColor     = color.New(color.Faint)
)

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	successColor.Printf("✓ %s\n", fmt.Sprintf(format, args...))
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	errorColor.Printf("✗ %s\n", fmt.Sprintf(format, args...))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	warningColor.Printf("⚠ %s\n", fmt.Sprintf(format, args...))
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	infoColor.Printf("ℹ %s\n", fmt.Sprintf(format, args...))
}

// PrintBold prints a bold message
func PrintBold(format string, args ...interface{}) {
	boldColor.Println(fmt.Sprintf(format, args...))
}

// PrintDim prints secondary text
func PrintDim(format string, args ...interface{}) {
	dimColor.Println(fmt.Sprintf(format, args...))
}

// PrintNotice prints a transient notice the way the chat screen shows a toast.
func PrintNotice(n apperr.Notice) {
	if n.Title == "" && n.Description == "" {
		return
	}
	if n.Level == apperr.LevelError {
		PrintError("%s: %s", n.Title, n.Description)
		return
	}
	PrintSuccess("%s: %s", n.Title, n.Description)
}

// PrintSuccessBox prints a success message in a box
func PrintSuccessBox(title, content string) {
	fmt.Println(Styles.SuccessBox.Render(fmt.Sprintf("%s\n\n%s", successColor.Sprint(title), content)))
}

// PrintErrorBox prints an error message in a box
func PrintErrorBox(title, content string) {
	fmt.Println(Styles.ErrorBox.Render(fmt.Sprintf("%s\n\n%s", errorColor.Sprint(title), content)))
}
