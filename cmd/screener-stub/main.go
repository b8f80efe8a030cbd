// screener-stub is a stand-in screening program for local runs and e2e tests.
// It prints broker-style log noise followed by a sentinel-framed JSON result,
// and can be told to hang, fail, or exit with a given code.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/screening"
)

type output struct {
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	ConditionName string           `json:"condition_name,omitempty"`
	Count         int              `json:"count"`
	Result        []screening.Item `json:"result"`
}

func price(p float64) *float64 { return &p }

var sample = []screening.Item{
	{Code: "005930", Name: "삼성전자", Price: price(71500)},
	{Code: "000660", Name: "SK하이닉스", Price: price(178000)},
	{Code: "035420", Name: "NAVER", Price: price(187300)},
	{Code: "035720", Name: "카카오", Price: price(41250)},
	{Code: "373220", Name: "LG에너지솔루션"},
}

func main() {
	delay := flag.Duration("delay", 0, "sleep before printing the result")
	hang := flag.Bool("hang", false, "never finish until signalled")
	fail := flag.String("fail", "", "report success=false with this error message")
	exitCode := flag.Int("exit", 0, "process exit code")
	noSentinel := flag.Bool("no-sentinel", false, "print the payload without markers")
	count := flag.Int("count", 2, "number of sample items to report")
	condition := flag.String("condition", "꼬리우상향_바닥2회", "condition name to report")
	flag.Parse()

	fmt.Fprintln(os.Stderr, "[broker] login ok")
	fmt.Println("[INFO] 조건검색 요청:", *condition)

	if *hang {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Fprintln(os.Stderr, "[broker] interrupted")
		os.Exit(130)
	}
	time.Sleep(*delay)

	out := output{Success: true, ConditionName: *condition, Result: []screening.Item{}}
	if *fail != "" {
		out = output{Success: false, Error: *fail, Result: []screening.Item{}}
	} else {
		n := min(max(*count, 0), len(sample))
		out.Result = sample[:n]
		out.Count = n
	}

	body, err := json.Marshal(out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *noSentinel {
		fmt.Println(string(body))
	} else {
		fmt.Println(screening.StartSentinel)
		fmt.Println(string(body))
		fmt.Println(screening.EndSentinel)
	}
	fmt.Println("[INFO] 조건검색 완료")
	os.Exit(*exitCode)
}
