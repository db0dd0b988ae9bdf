package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	"jobshell/internal/engine"
	logx "jobshell/pkg/logx"
)

// SpeedtestJob measures internet bandwidth against the closest speedtest.net
// servers and logs the outcome.
//
// Data keys:
//
//	server_count - closest-candidate pool size to ping (default 5)
//	timeout      - per-run budget, duration string or seconds (default 120s)
type SpeedtestJob struct {
	serverCount int
	timeout     time.Duration
	log         logx.Logger
}

func NewSpeedtestJob(detail *engine.JobDetail, log logx.Logger) (engine.Job, error) {
	return &SpeedtestJob{
		serverCount: dataInt(detail.Data, "server_count", 5),
		timeout:     dataDuration(detail.Data, "timeout", 2*time.Minute),
		log:         log,
	}, nil
}

func (j *SpeedtestJob) Execute(ctx context.Context, ec *engine.ExecutionContext) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	// Per-run client; the package-level default client retains snapshots
	// across runs.
	st := speedtest.New()
	defer func() {
		st.Snapshots().Clean()
		st.Reset()
	}()

	user, err := st.FetchUserInfoContext(ctx)
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}

	servers, err := st.FetchServerListContext(ctx)
	if err != nil {
		return fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return errors.New("no servers available")
	}

	sort.Slice(servers, func(i, k int) bool {
		return servers[i].Distance < servers[k].Distance
	})
	n := j.serverCount
	if n <= 0 {
		n = 5
	}
	if n > len(servers) {
		n = len(servers)
	}

	best := j.pickByLatency(ctx, servers[:n])
	if best == nil {
		return errors.New("all latency tests failed")
	}

	if err := best.DownloadTestContext(ctx); err != nil {
		return fmt.Errorf("download test (%s): %w", best.Host, err)
	}
	if err := best.UploadTestContext(ctx); err != nil {
		return fmt.Errorf("upload test (%s): %w", best.Host, err)
	}

	j.log.Info("speedtest.completed",
		logx.String("isp", user.Isp),
		logx.String("server", best.Sponsor),
		logx.String("country", best.Country),
		logx.Duration("ping", best.Latency),
		logx.Float64("download_mbps", best.DLSpeed.Mbps()),
		logx.Float64("upload_mbps", best.ULSpeed.Mbps()))
	return nil
}

// pickByLatency pings candidates sequentially and returns the lowest-latency
// server, or nil when every ping failed.
func (j *SpeedtestJob) pickByLatency(ctx context.Context, candidates []*speedtest.Server) *speedtest.Server {
	var best *speedtest.Server
	for _, s := range candidates {
		select {
		case <-ctx.Done():
			return best
		default:
		}
		if err := s.PingTestContext(ctx, nil); err != nil || s.Latency <= 0 {
			continue
		}
		if best == nil || s.Latency < best.Latency {
			best = s
		}
	}
	return best
}
