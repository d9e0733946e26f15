package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Tool names as exposed to the model.
const (
	ToolRememberName   = "remember_name"
	ToolRememberInfo   = "remember_important_info"
	ToolRecallMemories = "recall_memories"
	ToolSetDeviceAlarm = "set_device_alarm"
	ToolSearchInternet = "search_internet"
)

// unknownToolText is the fixed reply for a tool name this surface does not
// know; the model sees text, never an error.
const unknownToolText = "Maaf, saya tidak mengenali perintah itu."

// Tools returns the callable-function definitions handed to the model.
func (f *Funcs) Tools() []openai.Tool {
	str := func(desc string) jsonschema.Definition {
		return jsonschema.Definition{Type: jsonschema.String, Description: desc}
	}
	integer := func(desc string) jsonschema.Definition {
		return jsonschema.Definition{Type: jsonschema.Integer, Description: desc}
	}
	fn := func(name, desc string, props map[string]jsonschema.Definition, required []string) openai.Tool {
		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: desc,
				Parameters: jsonschema.Definition{
					Type:       jsonschema.Object,
					Properties: props,
					Required:   required,
				},
			},
		}
	}

	return []openai.Tool{
		fn(ToolRememberName,
			"Remember the user's name when they explicitly state it (e.g., 'My name is John').",
			map[string]jsonschema.Definition{
				"name": str("The user's name as stated by them."),
			},
			[]string{"name"}),
		fn(ToolRememberInfo,
			"Store important information, preferences, facts, goals, or concerns shared by the user.",
			map[string]jsonschema.Definition{
				"memory_topic": str(fmt.Sprintf("A concise category for the information (e.g., %s). Choose the most relevant category.", strings.Join(MemoryTopics, ", "))),
				"content":      str("The specific piece of information, preference, or fact to remember, phrased clearly."),
			},
			[]string{"memory_topic", "content"}),
		fn(ToolRecallMemories,
			"Recall relevant past information based on a specific topic, keyword, or question about previous conversations.",
			map[string]jsonschema.Definition{
				"topic_query": str("A specific topic, keyword, or question about past information. Examples: 'my job concerns', 'user goals', 'user name'. Be specific."),
				"limit":       integer("Maximum number of relevant memories to recall (default 3)."),
			},
			[]string{"topic_query"}),
		fn(ToolSetDeviceAlarm,
			"Sets an alarm on the user's connected device. Requires the exact hour (0-23), minute (0-59), date (in YYYY-MM-DD format), and a descriptive message/label for the alarm. Before calling this function, you MUST confirm all details with the user. Resolve relative dates like 'tomorrow' to the specific YYYY-MM-DD format based on the current date.",
			map[string]jsonschema.Definition{
				"hour":    integer("The hour for the alarm (24-hour format, 0-23)."),
				"minute":  integer("The minute for the alarm (0-59)."),
				"date":    str("The exact date for the alarm in YYYY-MM-DD format."),
				"message": str("The descriptive message or label for the alarm."),
			},
			[]string{"hour", "minute", "date", "message"}),
		fn(ToolSearchInternet,
			"Search the internet for up-to-date information, current events, facts, or topics unknown to the assistant. Use this when you lack the necessary information or need current data.",
			map[string]jsonschema.Definition{
				"query": str("The specific search query to look up information on the internet."),
			},
			[]string{"query"}),
	}
}

type rememberNameArgs struct {
	Name string `json:"name"`
}

type rememberInfoArgs struct {
	MemoryTopic string `json:"memory_topic"`
	Content     string `json:"content"`
}

type recallMemoriesArgs struct {
	TopicQuery string `json:"topic_query"`
	Limit      int    `json:"limit"`
}

type setDeviceAlarmArgs struct {
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

type searchInternetArgs struct {
	Query string `json:"query"`
}

// Dispatch routes one model tool call to its operation. Total: malformed
// arguments and unknown names come back as text, never as an error.
func (f *Funcs) Dispatch(ctx context.Context, name, argsJSON string) string {
	switch name {
	case ToolRememberName:
		var a rememberNameArgs
		if err := json.Unmarshal([]byte(argsJSON), &a); err != nil {
			log.Printf("dispatch: bad arguments for %s: %v", name, err)
			return "Maaf, sepertinya Anda belum menyebutkan nama."
		}
		return f.RememberName(ctx, a.Name)
	case ToolRememberInfo:
		var a rememberInfoArgs
		if err := json.Unmarshal([]byte(argsJSON), &a); err != nil {
			log.Printf("dispatch: bad arguments for %s: %v", name, err)
			return "Maaf, sepertinya tidak ada informasi spesifik yang perlu diingat."
		}
		return f.RememberInfo(ctx, a.MemoryTopic, a.Content)
	case ToolRecallMemories:
		a := recallMemoriesArgs{Limit: 3}
		if err := json.Unmarshal([]byte(argsJSON), &a); err != nil {
			log.Printf("dispatch: bad arguments for %s: %v", name, err)
			return "Untuk mengingat sesuatu, tolong beritahu topik atau kata kuncinya."
		}
		return f.RecallMemories(ctx, a.TopicQuery, a.Limit)
	case ToolSetDeviceAlarm:
		var a setDeviceAlarmArgs
		if err := json.Unmarshal([]byte(argsJSON), &a); err != nil {
			log.Printf("dispatch: bad arguments for %s: %v", name, err)
			return "Maaf, saya tidak dapat memahami detail alarm itu. Mohon sebutkan jam, menit, tanggal, dan pesannya."
		}
		return f.SetDeviceAlarm(ctx, a.Hour, a.Minute, a.Date, a.Message)
	case ToolSearchInternet:
		var a searchInternetArgs
		if err := json.Unmarshal([]byte(argsJSON), &a); err != nil {
			log.Printf("dispatch: bad arguments for %s: %v", name, err)
			return "Tolong berikan topik atau pertanyaan spesifik yang ingin Anda cari informasinya."
		}
		return f.SearchInternet(ctx, a.Query)
	default:
		log.Printf("dispatch: unknown tool call %q", name)
		return unknownToolText
	}
}
