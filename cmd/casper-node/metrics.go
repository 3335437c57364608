package main

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

var (
	metricHostCPUPercent = gethmetrics.NewRegisteredGaugeFloat64("host/cpu/percent", nil)
	metricHostMemUsed    = gethmetrics.NewRegisteredGauge("host/mem/used_bytes", nil)
	metricHostMemPercent = gethmetrics.NewRegisteredGaugeFloat64("host/mem/percent", nil)
)

// reportHostMetrics periodically samples the host's CPU/memory utilization
// into the same metrics registry the overlay and acceptor report through, so
// an operator's dashboard sees node-internal and host-level numbers side by
// side without a separate collector.
func reportHostMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
				metricHostCPUPercent.Update(pct[0])
			} else if err != nil {
				log.Debug("casper-node: host cpu sample failed", "err", err)
			}
			if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
				metricHostMemUsed.Update(int64(vm.Used))
				metricHostMemPercent.Update(vm.UsedPercent)
			} else {
				log.Debug("casper-node: host mem sample failed", "err", err)
			}
		}
	}
}
