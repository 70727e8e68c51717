// fire-sync CLI - Command line client for the fire-sync relay
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kperson/fire-sync/clients/go/firesync"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("FIRESYNC_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := firesync.NewClient(baseURL, os.Getenv("FIRESYNC_NAMESPACE"), os.Getenv("FIRESYNC_TOKEN"))
	client.MemberCredential = os.Getenv("FIRESYNC_MEMBER_CREDENTIAL")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "token":
		need(args, 1, "token <token>")
		exitOnError(client.CreateToken(ctx, args[0]))
		fmt.Printf("Token registered: %s\n", args[0])

	case "revoke":
		need(args, 1, "revoke <token>")
		exitOnError(client.DeleteToken(ctx, args[0]))
		fmt.Printf("Token revoked: %s\n", args[0])

	case "group":
		need(args, 1, "group <group_id>")
		resp, err := client.GetGroup(ctx, args[0])
		exitOnError(err)
		printJSON(resp)

	case "create-group":
		need(args, 1, "create-group <group_id>")
		_, err := client.CreateGroup(ctx, args[0])
		exitOnError(err)
		fmt.Printf("Group created: %s\n", args[0])

	case "delete-group":
		need(args, 1, "delete-group <group_id>")
		exitOnError(client.DeleteGroup(ctx, args[0]))
		fmt.Printf("Group deleted: %s\n", args[0])

	case "join":
		need(args, 2, "join <group_id> <member_id>")
		_, err := client.AddMember(ctx, args[0], args[1])
		exitOnError(err)
		fmt.Printf("%s joined %s\n", args[1], args[0])

	case "leave":
		need(args, 2, "leave <group_id> <member_id>")
		exitOnError(client.RemoveMember(ctx, args[0], args[1]))
		fmt.Printf("%s left %s\n", args[1], args[0])

	case "post":
		need(args, 2, "post <group_id> <json_message>")
		id, err := client.PostGroupMessage(ctx, args[0], parseMessage(args[1]))
		exitOnError(err)
		fmt.Printf("Posted: %s\n", id)

	case "dm":
		need(args, 2, "dm <member_id> <json_message>")
		id, err := client.PostMemberMessage(ctx, args[0], parseMessage(args[1]))
		exitOnError(err)
		fmt.Printf("Queued: %s\n", id)

	case "inbox":
		need(args, 1, "inbox <member_id>")
		messages, err := client.GetMemberMessages(ctx, args[0])
		exitOnError(err)
		ids := make([]string, 0, len(messages))
		for id := range messages {
			ids = append(ids, id)
		}
		// Push keys sort in creation order.
		sort.Strings(ids)
		for _, id := range ids {
			msg := messages[id]
			ts := time.Unix(msg.CreatedAt, 0).Format("2006-01-02 15:04:05")
			from := msg.GroupID
			if from == "" {
				from = "direct"
			}
			fmt.Printf("[%s] %s %s: %s\n", ts, id, from, msg.Message)
		}

	case "ack":
		need(args, 2, "ack <member_id> <message_id>")
		exitOnError(client.DeleteMemberMessage(ctx, args[0], args[1]))

	case "mint":
		need(args, 1, "mint <member_id>")
		token, err := client.IssueMemberToken(ctx, args[0])
		exitOnError(err)
		fmt.Println(token)

	case "state":
		need(args, 1, "state <group_id> [path]")
		path := ""
		if len(args) > 1 {
			path = args[1]
		}
		var state any
		exitOnError(client.GetState(ctx, args[0], path, &state))
		printJSON(state)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`fire-sync CLI - group and direct messaging relay

Usage: firesync <command> [options]

Commands:
  token <token>                    Register an access token
  revoke <token>                   Revoke an access token
  create-group <group_id>          Create or reset a group
  group <group_id>                 Show a group and its members
  delete-group <group_id>          Delete a group
  join <group_id> <member_id>      Add a member to a group
  leave <group_id> <member_id>     Remove a member from a group
  post <group_id> <json>           Post a message to a group
  dm <member_id> <json>            Post a message to one member
  inbox <member_id>                List a member's messages
  ack <member_id> <message_id>     Delete a message from an inbox
  mint <member_id>                 Issue a member credential
  state <group_id> [path]          Read group state
  health                           Check server health

Environment:
  FIRESYNC_URL                Server URL (default: http://localhost:8080)
  FIRESYNC_NAMESPACE          Namespace sent as X-Namespace
  FIRESYNC_TOKEN              Access token sent as X-Token
  FIRESYNC_MEMBER_CREDENTIAL  Member credential, accepted on its own inbox`)
}

func need(args []string, n int, form string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "Usage: firesync "+form)
		os.Exit(1)
	}
}

// parseMessage accepts JSON, falling back to the raw string.
func parseMessage(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
