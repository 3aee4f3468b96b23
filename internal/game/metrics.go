package game

import "github.com/prometheus/client_golang/prometheus"

var (
	commitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tetris_commits_total",
		Help: "Pieces locked onto the board by this process",
	})
	linesCleared = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tetris_lines_cleared_total",
		Help: "Full rows removed by commits of this process",
	})
)

func init() {
	prometheus.MustRegister(commitsTotal)
	prometheus.MustRegister(linesCleared)
}
