package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"tagstore-dht/internal/transport"
	"tagstore-dht/internal/wire"

	"github.com/peterh/liner"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:10000", "address of a node's client port")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	currentAddr := *addr
	fmt.Printf("tagstore interactive client. Connected to %s\n", currentAddr)
	fmt.Println("Available commands: add/delete/list/add_tags/delete_tags/get_user_id/use/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("tagstore[%s]> ", currentAddr))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)

		switch cmd {
		case "add":
			if len(args) < 6 {
				fmt.Println("Usage: add <name> <file_type> <user_id> <tags,comma,separated> <path>")
				break
			}
			userID, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil {
				fmt.Printf("invalid user_id: %v\n", err)
				break
			}
			content, err := os.ReadFile(args[5])
			if err != nil {
				fmt.Printf("failed to read %s: %v\n", args[5], err)
				break
			}
			reply, delay, err := call(ctx, currentAddr, "Create", "add", map[string]any{
				"name": args[1], "file_type": args[2], "user_id": userID,
				"tags": splitTags(args[4]), "content": content,
			}, *timeout)
			printResult("add", reply, delay, err)

		case "delete":
			if len(args) < 2 {
				fmt.Println("Usage: delete <tags,comma,separated>")
				break
			}
			reply, delay, err := call(ctx, currentAddr, "Delete", "delete", map[string]any{"tags": splitTags(args[1])}, *timeout)
			printResult("delete", reply, delay, err)

		case "list":
			var tags []string
			if len(args) >= 2 {
				tags = splitTags(args[1])
			}
			reply, delay, err := call(ctx, currentAddr, "GetAll", "list_files", map[string]any{"tags": tags}, *timeout)
			printResult("list", reply, delay, err)

		case "add_tags":
			if len(args) < 3 {
				fmt.Println("Usage: add_tags <tags,comma,separated> <new_tags,comma,separated>")
				break
			}
			reply, delay, err := call(ctx, currentAddr, "Create", "add_tags", map[string]any{
				"tags": splitTags(args[1]), "add_tags": splitTags(args[2]),
			}, *timeout)
			printResult("add_tags", reply, delay, err)

		case "delete_tags":
			if len(args) < 3 {
				fmt.Println("Usage: delete_tags <tags,comma,separated> <remove_tags,comma,separated>")
				break
			}
			reply, delay, err := call(ctx, currentAddr, "Delete", "delete_tags", map[string]any{
				"tags": splitTags(args[1]), "delete_tags": splitTags(args[2]),
			}, *timeout)
			printResult("delete_tags", reply, delay, err)

		case "get_user_id":
			if len(args) < 2 {
				fmt.Println("Usage: get_user_id <user_name>")
				break
			}
			reply, delay, err := call(ctx, currentAddr, "Get", "get_user_id", map[string]any{"user_name": args[1]}, *timeout)
			printResult("get_user_id", reply, delay, err)

		case "use":
			if len(args) < 2 {
				fmt.Println("Usage: use <addr>")
				break
			}
			currentAddr = args[1]
			fmt.Printf("Switched connection to %s\n", currentAddr)

		case "exit", "quit":
			fmt.Println("Bye!")
			cancel()
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}

		cancel()
	}
}

// call sends one request to addr and reports round-trip latency, the
// way the interactive client times every command.
func call(ctx context.Context, addr, command, function string, data any, timeout time.Duration) (wire.Message, time.Duration, error) {
	req, err := wire.NewMessage(command, function, data)
	if err != nil {
		return wire.Message{}, 0, err
	}
	start := time.Now()
	reply, err := transport.Call(ctx, addr, req, timeout)
	delay := time.Since(start)
	if err != nil {
		return wire.Message{}, delay, err
	}
	if werr := wire.AsError(reply); werr != nil {
		return wire.Message{}, delay, werr
	}
	return reply, delay, nil
}

func printResult(label string, reply wire.Message, delay time.Duration, err error) {
	if err != nil {
		fmt.Printf("%s failed: %v | latency=%s\n", label, err, delay)
		return
	}
	var out map[string]any
	_ = reply.Decode(&out)
	fmt.Printf("%s succeeded: %+v | latency=%s\n", label, out, delay)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
