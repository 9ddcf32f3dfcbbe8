/*
main.go - NLQ evaluation harness

PURPOSE:
  Exercises a running server's natural-language endpoint and records a
  scored report. Two question sets:

  - Rule-based questions: deterministic intents, each with a substring
    check against the answer.
  - LLM-fallback questions: phrased so no intent matches. Each runs
    exactly three times: forced mini variant, forced full variant
    (via the X-Model header), and once with no header (server picks).

  Per run the harness opens a fresh conversation, asks the question,
  then joins the server's trace row for that conversation to pick up
  the observed model, token counts and server-side latency. Results go
  to a CSV report and a JSONL answer log.

USAGE:
  eval --base http://localhost:8080 --out-dir eval/
*/
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var cli struct {
	Base   string `help:"Server base URL." default:"http://localhost:8080" env:"BASE_URL"`
	OutDir string `help:"Directory for outputs (created if missing)." default:"eval" name:"out-dir"`
	CSV    string `help:"CSV path; default <out-dir>/eval_report.csv."`
	JSON   string `help:"JSONL path; default <out-dir>/answers.jsonl."`
	Mini   string `help:"Mini model variant." default:"gpt-4o-mini"`
	Full   string `help:"Full model variant." default:"gpt-4o"`
}

type check func(answer string) bool

type question struct {
	Text  string
	Check check
}

func ruleQuestions() []question {
	contains := func(subs ...string) check {
		return func(a string) bool {
			la := strings.ToLower(a)
			for _, s := range subs {
				if strings.Contains(la, s) {
					return true
				}
			}
			return false
		}
	}
	return []question{
		{"What was the total profit in Q1 2024?", contains("profit")},
		{"Show me revenue trends for 2024", contains("revenue")},
		{"Which expense category had the highest increase 2024?", contains("increase", "expense")},
		{"Compare Q1 and Q2 performance 2024", func(a string) bool {
			la := strings.ToLower(a)
			return (strings.Contains(la, "q1") && strings.Contains(la, "q2")) || strings.Contains(la, "vs")
		}},
	}
}

func llmQuestions() []string {
	return []string{
		"Summarize our 2024 financial performance in one sentence with concrete numbers.",
		"In one sentence: what drove margin changes across months in 2024?",
		"Identify any unusual spikes or dips in 2024 and explain them in one sentence.",
	}
}

// nlqResponse is the slice of the server's answer envelope the harness
// reads.
type nlqResponse struct {
	Answer string           `json:"answer"`
	Trace  []map[string]any `json:"trace"`
}

// traceRow is one observability row joined by conversation id.
type traceRow struct {
	Model            *string `json:"model"`
	TokensPrompt     int     `json:"tokens_prompt"`
	TokensCompletion int     `json:"tokens_completion"`
	LatencyMS        float64 `json:"latency_ms"`
}

type runner struct {
	base   string
	client *http.Client
	logger *log.Logger
	csvW   *csv.Writer
	jsonW  io.Writer
}

func (r *runner) ask(query, convID, forceModel string) (*nlqResponse, error) {
	body, err := json.Marshal(map[string]string{
		"query":           query,
		"conversation_id": convID,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, r.base+"/api/v1/nlq", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if forceModel != "" {
		req.Header.Set("X-Model", forceModel)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("nlq returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out nlqResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// latestTrace returns the newest trace row for a conversation, or nil.
func (r *runner) latestTrace(convID string) *traceRow {
	u := r.base + "/api/v1/obs/traces/by_conv?conversation_id=" + url.QueryEscape(convID)
	resp, err := r.client.Get(u)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var out struct {
		Rows []traceRow `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Rows) == 0 {
		return nil
	}
	return &out.Rows[0]
}

func excerpt(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (r *runner) runOne(kind string, q question, forceModel string) {
	convID := "eval_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	start := time.Now()
	resp, err := r.ask(q.Text, convID, forceModel)
	clientLatency := float64(time.Since(start).Microseconds()) / 1000.0

	ts := time.Now().UTC().Format("2006-01-02T15:04:05")

	if err != nil {
		r.logger.Error("question failed", "kind", kind, "question", q.Text, "err", err)
		r.writeRow([]string{ts, kind, q.Text, "http_error",
			fmt.Sprintf("%.2f", clientLatency), forceModel, "", "", "0", excerpt(err.Error(), 160)})
		r.writeJSONL(map[string]any{
			"ts": ts, "kind": kind, "question": q.Text, "status": "http_error",
			"latency_ms": clientLatency, "model": forceModel,
			"error": err.Error(), "conversation_id": convID,
		})
		return
	}

	// Server-side trace has the authoritative model/tokens/latency.
	obsRow := r.latestTrace(convID)
	model := forceModel
	tokensPrompt, tokensCompletion := "", ""
	latency := clientLatency
	if obsRow != nil {
		if obsRow.Model != nil {
			model = *obsRow.Model
		}
		if obsRow.TokensPrompt > 0 {
			tokensPrompt = fmt.Sprintf("%d", obsRow.TokensPrompt)
		}
		if obsRow.TokensCompletion > 0 {
			tokensCompletion = fmt.Sprintf("%d", obsRow.TokensCompletion)
		}
		if obsRow.LatencyMS > 0 {
			latency = obsRow.LatencyMS
		}
	}

	passed := strings.TrimSpace(resp.Answer) != ""
	if kind == "rb" && q.Check != nil {
		passed = q.Check(resp.Answer)
	}
	status := "fail"
	if passed {
		status = "pass"
	}

	r.writeRow([]string{ts, kind, q.Text, status,
		fmt.Sprintf("%.2f", latency), model, tokensPrompt, tokensCompletion,
		fmt.Sprintf("%d", len(resp.Answer)), excerpt(resp.Answer, 160)})
	r.writeJSONL(map[string]any{
		"ts": ts, "kind": kind, "question": q.Text, "status": status,
		"latency_ms": latency, "model": model,
		"tokens_prompt": tokensPrompt, "tokens_completion": tokensCompletion,
		"answer": resp.Answer, "answer_len": len(resp.Answer),
		"trace": resp.Trace, "conversation_id": convID,
	})
	r.logger.Info("question done", "kind", kind, "status", status, "model", model, "latency_ms", latency)
}

func (r *runner) writeRow(row []string) {
	_ = r.csvW.Write(row)
	r.csvW.Flush()
}

func (r *runner) writeJSONL(obj map[string]any) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return
	}
	_, _ = r.jsonW.Write(append(raw, '\n'))
}

func main() {
	kong.Parse(&cli,
		kong.Name("eval"),
		kong.Description("Scores the NLQ endpoint of a running finance-engine server."),
	)

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "eval"})

	if err := os.MkdirAll(cli.OutDir, 0o755); err != nil {
		logger.Fatal("cannot create output dir", "dir", cli.OutDir, "err", err)
	}
	csvPath := cli.CSV
	if csvPath == "" {
		csvPath = filepath.Join(cli.OutDir, "eval_report.csv")
	}
	jsonPath := cli.JSON
	if jsonPath == "" {
		jsonPath = filepath.Join(cli.OutDir, "answers.jsonl")
	}

	csvFile, err := os.Create(csvPath)
	if err != nil {
		logger.Fatal("cannot create CSV", "path", csvPath, "err", err)
	}
	defer csvFile.Close()
	jsonFile, err := os.Create(jsonPath)
	if err != nil {
		logger.Fatal("cannot create JSONL", "path", jsonPath, "err", err)
	}
	defer jsonFile.Close()

	r := &runner{
		base:   strings.TrimRight(cli.Base, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
		csvW:   csv.NewWriter(csvFile),
		jsonW:  jsonFile,
	}
	_ = r.csvW.Write([]string{
		"ts", "kind", "question", "status",
		"latency_ms", "model", "tokens_prompt", "tokens_completion",
		"answer_len", "answer_excerpt",
	})

	for _, q := range ruleQuestions() {
		r.runOne("rb", q, "")
	}

	// Three runs per LLM question: forced mini, forced full, random.
	for _, text := range llmQuestions() {
		q := question{Text: text}
		r.runOne("llm", q, cli.Mini)
		r.runOne("llm", q, cli.Full)
		r.runOne("llm", q, "")
	}

	r.csvW.Flush()
	logger.Info("report saved", "csv", csvPath, "jsonl", jsonPath)
}
