package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"runabout/pkg/instruction"
	"runabout/pkg/scenario"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("runabout cli 0.1.0")
	case "status":
		runStatus()
	case "install", "disable":
		runAgentAction(cmd)
	case "instructions":
		runInstructions()
	case "push":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: runabout push <file>\n")
			os.Exit(1)
		}
		runPush(args[0])
	case "refresh":
		runRefresh()
	case "decode":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: runabout decode <file>\n")
			os.Exit(1)
		}
		os.Exit(decodeScenario(args[0], os.Stdout, os.Stderr))
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: runabout <command> [args]")
	fmt.Println("  version         - 显示版本")
	fmt.Println("  status          - 显示 Agent 状态与拦截点")
	fmt.Println("  install         - 安装或重新启用 Agent")
	fmt.Println("  disable         - 停用 Agent（保留已挂钩的点）")
	fmt.Println("  instructions    - 列出当前生效的指令")
	fmt.Println("  push <file>     - 以文件中的指令整体替换（JSON 或每行一条引用）")
	fmt.Println("  refresh         - 让 Agent 从控制面拉取最新指令")
	fmt.Println("  decode <file>   - 解析场景 JSON（信封或裸场景）并打印")
	fmt.Println("环境变量: RUNABOUT_ADMIN_URL（默认 http://127.0.0.1:7070）, RUNABOUT_ADMIN_TOKEN")
}

func runStatus() {
	st, err := getAgentStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取状态失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(st))
}

func runAgentAction(action string) {
	st, err := postAgent(action)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s 失败: %v\n", action, err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(st))
}

func runInstructions() {
	list, err := listInstructions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "列出指令失败: %v\n", err)
		os.Exit(1)
	}
	for _, ins := range list {
		fmt.Println(ins.Key())
	}
}

func runPush(path string) {
	set, err := loadInstructions(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取指令失败: %v\n", err)
		os.Exit(1)
	}
	report, err := putInstructions(set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "推送指令失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(report))
}

func runRefresh() {
	report, err := refreshInstructions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "刷新失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(report))
}

// loadInstructions 文件可以是 {"instructions":[...]}、指令数组，或每行一条 Type[#Method] 引用（# 开头的行为注释）
func loadInstructions(path string) (instruction.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		var body struct {
			Instructions instruction.Set `json:"instructions"`
		}
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return nil, err
		}
		if body.Instructions == nil {
			return instruction.NewSet(), nil
		}
		return body.Instructions, nil
	case bytes.HasPrefix(trimmed, []byte("[")):
		var set instruction.Set
		if err := json.Unmarshal(trimmed, &set); err != nil {
			return nil, err
		}
		return set, nil
	}
	var refs []string
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return instruction.ParseSet(refs)
}

// decodeScenario 打印场景摘要，返回进程退出码
func decodeScenario(path string, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "读取文件失败: %v\n", err)
		return 1
	}
	env, err := scenario.ParseEnvelope(data)
	if err != nil {
		fmt.Fprintf(stderr, "解析场景失败: %v\n", err)
		return 2
	}
	s := env.Scenario
	if env.ProjectName != "" {
		fmt.Fprintf(stdout, "project:  %s\n", env.ProjectName)
	}
	fmt.Fprintf(stdout, "version:  %s\n", s.Version())
	fmt.Fprintf(stdout, "method:   %s\n", orDash(s.Method()))
	fmt.Fprintf(stdout, "event_id: %s\n", orDash(s.EventID()))
	fmt.Fprintf(stdout, "datetime: %s\n", s.Timestamp().Format("2006-01-02T15:04:05.000Z07:00"))
	props := s.Properties()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(stdout, "property: %s=%s\n", k, props[k])
	}
	for i, in := range s.Instances() {
		marker := ""
		if in.Unencodable() {
			marker = " (unencodable)"
		}
		fmt.Fprintf(stdout, "input[%d]: %s%s\n", i, in.Type(), marker)
		fmt.Fprintf(stdout, "  eval: %s\n", in.Expression())
		if deps := in.Dependencies(); len(deps) > 0 {
			fmt.Fprintf(stdout, "  deps: %s\n", strings.Join(deps, ", "))
		}
	}
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
