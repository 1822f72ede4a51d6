package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	Create(ctx context.Context) error
	Edit(ctx context.Context, args []string) error
	SetDate(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	Unlock(ctx context.Context, args []string) error
	Drafts(ctx context.Context) error
	Sync(ctx context.Context) error
	Filter(ctx context.Context, args []string) error
	Sort(ctx context.Context, args []string) error
	Columns(ctx context.Context) error
	Import(ctx context.Context, args []string) error
}

// runREPL reads commands from scanner and dispatches them to a until EOF or
// "exit"/"quit". The prompt shows statusFn. Commands that need a session
// are refused while logged out. Handlers report their own errors, so the
// returned errors are ignored here.
//
//	Not logged in:
//	  - help, login, exit | quit
//
//	Logged in:
//	  - list | l             list rows with the active filters
//	  - show <id>            show one row
//	  - create               create a row (needs a connection)
//	  - edit <id>            change fields
//	  - date <id> <date>     move a row to another date
//	  - delete <id>          delete a row
//	  - lock / unlock <id>   take or release the edit lock
//	  - drafts, sync         inspect and replay offline changes
//	  - filter [k=v|clear]   show or change filters
//	  - sort asc|desc        change the date order
//	  - columns              show the sheet columns
//	  - import <file.csv>    import rows from a CSV file
//	  - logout, exit | quit
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ts> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (l)ist, show, create, edit, date, delete, lock, unlock, drafts, sync, filter, sort, columns, import, logout, exit")
			} else {
				printlnFn("Available commands: login, exit")
			}
			continue

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "login":
			_ = a.Login(ctx)
			continue
		}

		if !a.isLoggedIn() {
			if isCommand(cmd) {
				printlnFn("Please login first")
			} else {
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		switch cmd {
		case "l", "list":
			_ = a.List(ctx)
		case "show":
			_ = a.Show(ctx, args)
		case "create":
			_ = a.Create(ctx)
		case "edit":
			_ = a.Edit(ctx, args)
		case "date":
			_ = a.SetDate(ctx, args)
		case "delete":
			_ = a.Delete(ctx, args)
		case "lock":
			_ = a.Lock(ctx, args)
		case "unlock":
			_ = a.Unlock(ctx, args)
		case "drafts":
			_ = a.Drafts(ctx)
		case "sync":
			_ = a.Sync(ctx)
		case "filter":
			_ = a.Filter(ctx, args)
		case "sort":
			_ = a.Sort(ctx, args)
		case "columns":
			_ = a.Columns(ctx)
		case "import":
			_ = a.Import(ctx, args)
		case "logout":
			_ = a.Logout(ctx)
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

var sessionCommands = map[string]struct{}{
	"l": {}, "list": {}, "show": {}, "create": {}, "edit": {}, "date": {},
	"delete": {}, "lock": {}, "unlock": {}, "drafts": {}, "sync": {},
	"filter": {}, "sort": {}, "columns": {}, "import": {}, "logout": {},
}

func isCommand(cmd string) bool {
	_, ok := sessionCommands[cmd]
	return ok
}
