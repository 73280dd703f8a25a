package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spectral-workcell/internal/config"
	"spectral-workcell/internal/engine"
	"spectral-workcell/internal/event"
	"spectral-workcell/internal/fsm"
	"spectral-workcell/internal/handlers"
	"spectral-workcell/internal/labware"
	"spectral-workcell/internal/ledger"
	"spectral-workcell/internal/machine"
	"spectral-workcell/internal/persistence"
	"spectral-workcell/internal/spectra"
	"spectral-workcell/internal/tool"
	"spectral-workcell/internal/util"
	"spectral-workcell/internal/web"
)

// main 是应用程序的主入口
func main() {
	// 1. 初始化核心组件
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("加载配置失败", "error", err)
		os.Exit(1)
	}

	recipePath := "recipe.yaml"
	if len(os.Args) > 1 {
		recipePath = os.Args[1]
	}
	recipe, err := config.LoadRecipe(recipePath)
	if err != nil {
		logger.Error("加载配方失败", "path", recipePath, "error", err)
		os.Exit(1)
	}

	clock := util.WallClock{}
	runID := util.NewRunID(clock.Now())
	logger = logger.With("run_id", runID)

	hub := web.NewHub()
	go hub.Run()
	stateTracker := web.NewStateTracker(hub, runID)

	eventBus := event.NewBus()

	journal, err := persistence.NewJournal(cfg.JournalPath)
	if err != nil {
		logger.Error("无法初始化运行日志", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	// 2. 注册事件处理器
	handlers.RegisterEventHandlers(eventBus, stateTracker, logger)

	// 3. 装配台面、机器与工具
	deck, err := labware.BuildDeck(recipe)
	if err != nil {
		logger.Error("装配台面失败", "error", err)
		os.Exit(1)
	}

	m := machine.NewSim(clock, time.Duration(cfg.SimMoveDelayMs)*time.Millisecond, logger)
	sensor := tool.NewSimSensor()
	var confirm tool.Confirmer = &tool.StdinConfirmer{In: os.Stdin, Out: os.Stderr}
	confirm = &tool.SimOperator{Inner: confirm, Sensor: sensor}

	refs, err := spectra.NewReferenceStore(filepath.Join(cfg.SpectraDir, "references"))
	if err != nil {
		logger.Error("初始化基准光谱目录失败", "error", err)
		os.Exit(1)
	}
	store, err := spectra.NewStore(cfg.SpectraDir, runID)
	if err != nil {
		logger.Error("初始化光谱数据目录失败", "error", err)
		os.Exit(1)
	}

	single, err := tool.NewSyringe("syringe", m, confirm, logger, tool.Channel{
		Axis: machine.AxisE2, Min: 0, Max: 100, MMPerML: 10, PrimingMM: 10,
	})
	if err != nil {
		logger.Error("创建单通道注射器失败", "error", err)
		os.Exit(1)
	}
	dual, err := tool.NewDualSyringe("dual_syringe", m, confirm, logger,
		tool.Channel{Axis: machine.AxisE0, Min: 0, Max: 60, MMPerML: 12, PrimingMM: 10},
		tool.Channel{Axis: machine.AxisE1, Min: 0, Max: 60, MMPerML: 12, PrimingMM: 10},
		18)
	if err != nil {
		logger.Error("创建双联注射器失败", "error", err)
		os.Exit(1)
	}
	gripper := tool.NewVacuumGripper("vacuum_gripper", m, confirm, logger)
	spec := tool.NewSpectrometer("spectrometer", m, confirm, logger, sensor, refs, store, clock)

	// 4. 装配台账、调度器与管线
	led := ledger.New(recipe.Interval(), clock)
	sm := fsm.NewFSM(runID)

	reading := engine.NewReading(spec, deck, led, journal, eventBus, clock, logger,
		recipe.SpectrumRecordIntervalMins, recipe.MaxSpectrumRecords, cfg.WashCycles)
	scheduler := engine.NewScheduler(engine.SchedulerParams{
		Ledger:         led,
		Action:         reading,
		FSM:            sm,
		Bus:            eventBus,
		Clock:          clock,
		Logger:         logger,
		RunID:          runID,
		EstimateMins:   cfg.MakeVialEstimateMins,
		MaxRecords:     recipe.MaxSpectrumRecords,
		YieldPreWindow: time.Duration(cfg.YieldPreWindowSecs) * time.Second,
		YieldPoll:      time.Duration(cfg.YieldPollSecs) * time.Second,
		DrainPreWindow: time.Duration(cfg.DrainPreWindowSecs) * time.Second,
		DrainPoll:      time.Duration(cfg.DrainPollSecs) * time.Second,
	})
	pipeline := engine.NewPipeline(deck, led, single, dual, gripper, scheduler, reading,
		journal, eventBus, clock, logger, runID, recipe)
	experiment := engine.NewExperiment(cfg, recipe, deck, led, pipeline, scheduler,
		journal, eventBus, sm, clock, logger, runID)

	logger.Info("=== 光谱工作台批次系统启动 ===", "recipe", recipePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go startAPIServer(cfg.HTTPAddr, hub, stateTracker, logger)

	done := make(chan error, 1)
	go func() { done <- experiment.Run(ctx) }()

	// 5. 优雅停机: 批次结束或收到信号
	waitForShutdown(logger, cancel, done)
}

// startAPIServer 启动 API 和 Web 服务器
func startAPIServer(addr string, hub *web.Hub, st *web.StateTracker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st.GetStateSnapshot())
	})

	fs := http.FileServer(http.Dir("./web/static"))
	mux.Handle("/", fs)

	logger.Info("API 和前端服务器启动", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("API 服务器启动失败", "error", err)
	}
}

// waitForShutdown 等待批次结束或系统信号以实现优雅停机
func waitForShutdown(logger *slog.Logger, cancel context.CancelFunc, done <-chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("接收到停机信号，正在优雅关闭...")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			logger.Error("批次异常结束", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("批次结束，系统已安全退出。")
}
