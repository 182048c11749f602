package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/pflag"

	"agent_catalog/internal/catalog"
	"agent_catalog/internal/client"
	"agent_catalog/internal/domain"
)

type embeddedCatalog struct {
	cmd *exec.Cmd
}

func main() {
	addr := pflag.String("addr", "http://127.0.0.1:3001", "catalogd base URL")
	interval := pflag.Duration("interval", 2*time.Second, "refresh interval")
	embedded := pflag.Bool("embedded", false, "start catalogd for the lifetime of the monitor")
	catalogBinary := pflag.String("catalogd-bin", "", "path to catalogd binary (embedded mode)")
	dataDir := pflag.String("data-dir", "data/embedded", "data directory for embedded catalogd")
	seedPath := pflag.String("seed", "", "ecosystem file passed to embedded catalogd")
	pflag.Parse()

	// Each call carries its own deadline; chat turns can run far longer than a poll.
	c := client.New(*addr, &http.Client{})

	var proc *embeddedCatalog
	if *embedded {
		var err error
		proc, err = startEmbeddedCatalog(*addr, *catalogBinary, *dataDir, *seedPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start embedded catalogd: %v\n", err)
			os.Exit(1)
		}
		defer proc.Stop()
	}

	if err := waitReady(context.Background(), c, proc, 30*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "catalogd health check failed: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()

	filterInput := tview.NewInputField().SetLabel("Filter: ")
	filterInput.SetBorder(true).SetTitle("Fuzzy filter (/)")

	agentsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	agentsTable.SetTitle("Agents (Enter chat, F5 refresh, F10 quit)").SetBorder(true)

	statsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statsView.SetTitle("Latency").SetBorder(true)

	logsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	logsView.SetTitle("Interactions (newest first)").SetBorder(true)

	traceView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	traceView.SetTitle("Simulation trace").SetBorder(true)

	chatView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetScrollable(true)
	chatView.SetTitle("Conversation").SetBorder(true)

	chatInput := tview.NewInputField().
		SetLabel("Message: ")
	chatInput.SetBorder(true).SetTitle("Enter = send to selected agent")

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf(
		"Connected to %s | embedded=%t | shortcuts: F10 quit, F5 refresh, / filter, Ctrl+L message, Ctrl+T agents",
		c.BaseURL(),
		*embedded,
	))

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(filterInput, 3, 0, false).
		AddItem(agentsTable, 0, 1, false)
	rightTop := tview.NewFlex().
		AddItem(statsView, 0, 1, false).
		AddItem(traceView, 0, 1, false)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(rightTop, 6, 0, false).
		AddItem(chatView, 0, 3, false).
		AddItem(logsView, 0, 2, false)

	mainLayout := tview.NewFlex().
		AddItem(left, 0, 1, false).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, false).
		AddItem(chatInput, 3, 0, true).
		AddItem(statusView, 3, 0, false)

	// Only touched from the UI goroutine.
	var (
		allAgents   []domain.Agent
		shownAgents []domain.Agent
		selected    *domain.Agent
		lines       []chatLine
		sending     bool
	)

	setStatusUI := func(msg string) {
		statusView.SetText(msg)
	}

	applyFilter := func() {
		shownAgents = filterAgents(allAgents, filterInput.GetText())
		selectedID := ""
		if selected != nil {
			selectedID = selected.ID
		}
		renderAgentsTable(agentsTable, shownAgents, selectedID)
	}

	refreshAgents := func() {
		agents, err := fetchAllAgents(c)
		app.QueueUpdateDraw(func() {
			if err != nil {
				agentsTable.Clear()
				agentsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
				return
			}
			allAgents = agents
			applyFilter()
		})
	}

	refreshTelemetry := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		summary, summaryErr := c.Summary(ctx)
		stats, statsErr := c.Stats(ctx)
		logs, logsErr := c.Logs(ctx)
		app.QueueUpdateDraw(func() {
			switch {
			case summaryErr != nil:
				statsView.SetText(fmt.Sprintf("error: %v", summaryErr))
			case statsErr != nil:
				statsView.SetText(fmt.Sprintf("error: %v", statsErr))
			default:
				statsView.SetText(renderStats(summary, stats))
			}
			if logsErr != nil {
				logsView.SetText(fmt.Sprintf("error: %v", logsErr))
			} else {
				logsView.SetText(renderLogs(logs))
			}
		})
	}

	selectAgent := func(agent domain.Agent) {
		selected = &agent
		lines = nil
		chatView.SetText(renderConversation(selected, lines))
		traceView.SetText("Loading...")
		setStatusUI("Selected " + agent.Name)
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			steps, err := c.Trace(ctx, id)
			app.QueueUpdateDraw(func() {
				if selected == nil || selected.ID != id {
					return
				}
				if err != nil {
					traceView.SetText(fmt.Sprintf("error: %v", err))
					return
				}
				traceView.SetText(renderTrace(steps))
			})
		}(agent.ID)
	}

	submitMessage := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if selected == nil {
			setStatusUI("Select an agent first")
			return
		}
		if sending {
			setStatusUI("Waiting for the previous reply...")
			return
		}
		chatInput.SetText("")
		lines = append(lines, chatLine{turn: domain.Turn{Role: domain.TurnRoleUser, Text: text}})
		chatView.SetText(renderConversation(selected, lines))
		chatView.ScrollToEnd()
		sending = true
		setStatusUI("Waiting for " + selected.Name + "...")

		agentID := selected.ID
		turns := history(lines)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			start := time.Now()
			reply, err := c.Chat(ctx, client.ChatRequest{AgentID: agentID, History: turns})
			app.QueueUpdateDraw(func() {
				sending = false
				if selected == nil || selected.ID != agentID {
					return
				}
				if err != nil {
					lines = append(lines, errorLine(err))
					statusView.SetText("Chat failed: " + err.Error())
				} else {
					lines = append(lines, replyLine(reply))
					statusView.SetText(fmt.Sprintf("Reply in %s", time.Since(start).Round(time.Millisecond)))
				}
				chatView.SetText(renderConversation(selected, lines))
				chatView.ScrollToEnd()
			})
			refreshTelemetry()
		}()
	}

	filterInput.SetChangedFunc(func(string) {
		applyFilter()
	})
	filterInput.SetDoneFunc(func(tcell.Key) {
		app.SetFocus(agentsTable)
	})

	chatInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		submitMessage(chatInput.GetText())
	})

	agentsTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(shownAgents) {
			return
		}
		selectAgent(shownAgents[row-1])
		app.SetFocus(chatInput)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go refreshAgents()
			go refreshTelemetry()
			setStatusUI("Manual refresh requested")
			return nil
		case tcell.KeyCtrlL:
			app.SetFocus(chatInput)
			setStatusUI("Focus -> message")
			return nil
		case tcell.KeyCtrlT:
			app.SetFocus(agentsTable)
			setStatusUI("Focus -> agents")
			return nil
		}
		focus := app.GetFocus()
		if focus == chatInput || focus == filterInput {
			if event.Key() == tcell.KeyEscape {
				app.SetFocus(agentsTable)
				return nil
			}
			return event
		}
		if event.Key() == tcell.KeyRune && event.Rune() == '/' {
			app.SetFocus(filterInput)
			return nil
		}
		if event.Key() == tcell.KeyTAB {
			app.SetFocus(chatInput)
			return nil
		}
		return event
	})

	go func() {
		refreshAgents()
		refreshTelemetry()

		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for range ticker.C {
			refreshTelemetry()
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(agentsTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

// fetchAllAgents walks every page of the catalog.
func fetchAllAgents(c *client.Client) ([]domain.Agent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var out []domain.Agent
	for page := 1; ; page++ {
		res, err := c.ListAgents(ctx, domain.AgentFilter{Page: page, PageSize: catalog.MaxPageSize})
		if err != nil {
			return nil, err
		}
		out = append(out, res.Agents...)
		if len(res.Agents) == 0 || len(out) >= res.Total {
			return out, nil
		}
	}
}

func startEmbeddedCatalog(addr, binary, dataDir, seedPath string) (*embeddedCatalog, error) {
	parsed, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	port := parsed.Port()
	if port == "" {
		return nil, fmt.Errorf("addr must include explicit port, got %q", addr)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	args := []string{"--addr", "127.0.0.1:" + port, "--data-dir", dataDir}
	if strings.TrimSpace(seedPath) != "" {
		args = append(args, "--seed", seedPath)
	}

	var cmd *exec.Cmd
	if strings.TrimSpace(binary) != "" {
		cmd = exec.Command(binary, args...)
	} else {
		self, err := os.Executable()
		if err == nil {
			sibling := filepath.Join(filepath.Dir(self), "catalogd")
			if fileExists(sibling) {
				cmd = exec.Command(sibling, args...)
			}
		}
		if cmd == nil {
			cmd = exec.Command("go", append([]string{"run", "./cmd/catalogd"}, args...)...)
			cwd, _ := os.Getwd()
			cmd.Dir = cwd
		}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start catalogd process: %w", err)
	}
	return &embeddedCatalog{cmd: cmd}, nil
}

// waitReady blocks until catalogd answers /healthz. On failure the embedded
// process, if any, is stopped before returning since the caller exits.
func waitReady(ctx context.Context, c *client.Client, proc *embeddedCatalog, timeout time.Duration) error {
	if err := c.WaitHealth(ctx, timeout); err != nil {
		proc.Stop()
		return err
	}
	return nil
}

func (e *embeddedCatalog) Stop() {
	if e == nil || e.cmd == nil || e.cmd.Process == nil {
		return
	}
	_ = e.cmd.Process.Kill()
	_, _ = e.cmd.Process.Wait()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
