package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"mirae/api"
	"mirae/bot"
	"mirae/config"
	"mirae/ledger"
	"mirae/logger"
	"mirae/market"
	"mirae/notify"
)

func main() {
	configFile := flag.String("config", "config.json", "engine configuration file")
	serve := flag.Bool("serve", false, "run the reporting API server instead of a trading cycle")
	flag.Parse()

	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║        📈 Periodic Auto-Trading Engine                     ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Load .env if present (silently ignore if missing)
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			log.Printf("ℹ️  No .env file found, continuing with OS environment variables")
		} else {
			log.Printf("⚠️  Failed to load .env file: %v", err)
		}
	}

	log.Printf("📋 Loading configuration file: %s", *configFile)
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Hosted platforms inject the listen port through the environment
	if port := os.Getenv("PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.APIServerPort = n
		}
	}

	configs, err := config.LoadTradingConfigs(cfg.TradingConfigsFile)
	if err != nil {
		log.Fatalf("❌ Failed to load trading configs: %v", err)
	}
	log.Printf("✓ Configuration loaded (%s mode, %s gateway, %d active configs)",
		cfg.Mode, cfg.Gateway, len(configs))

	lg, err := ledger.Open(cfg.DataDir, cfg.Mode)
	if err != nil {
		log.Fatalf("❌ Failed to open trade ledger: %v", err)
	}
	defer lg.Close()

	tradeLog, err := logger.Open(cfg.DataDir, cfg.Mode)
	if err != nil {
		log.Fatalf("❌ Failed to open trade log: %v", err)
	}
	defer tradeLog.Close()

	if *serve {
		server := api.NewServer(configs, lg, tradeLog, cfg.Mode, cfg.APIServerPort)
		if err := server.Start(); err != nil {
			log.Fatalf("❌ API server error: %v", err)
		}
		return
	}

	md, orders, err := buildGateway(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize gateway: %v", err)
	}

	notifier := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)

	engine := bot.New(cfg, configs, md, orders, lg, tradeLog, notifier)
	if err := engine.RunCycle(); err != nil {
		log.Fatalf("❌ Trading cycle failed: %v", err)
	}
}

// buildGateway wires the configured brokerage. The paper gateway is a
// full simulated account; KIS and Binance are live connections.
func buildGateway(cfg *config.AppConfig) (market.MarketData, market.OrderGateway, error) {
	switch cfg.Gateway {
	case "kis":
		g := market.NewKIS(market.KISConfig{
			AppKey:      cfg.KISAppKey,
			AppSecret:   cfg.KISAppSecret,
			AccountNo:   cfg.KISAccountNo,
			ProductCode: cfg.KISProductCode,
			Virtual:     cfg.Mode == config.ModeVirtual,
			DataDir:     cfg.DataDir,
		})
		return g, g, nil
	case "binance":
		g := market.NewBinance(cfg.BinanceAPIKey, cfg.BinanceSecretKey, "")
		return g, g, nil
	case "paper":
		g, err := market.NewPaper(nil, cfg.PaperInitialBalance, cfg.DataDir, cfg.Mode)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	default:
		return nil, nil, fmt.Errorf("unknown gateway %q", cfg.Gateway)
	}
}
