package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/bootstrap"
	"github.com/zhouzirui/constitution-portal/backend/internal/config"
	"github.com/zhouzirui/constitution-portal/backend/internal/logger"
	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/catalog"
	chatservice "github.com/zhouzirui/constitution-portal/backend/internal/service/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/download"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/notify"
	"github.com/zhouzirui/constitution-portal/backend/internal/storage"
)

func main() {
	profile := flag.String("profile", "default", "本地档案名，对应一份独立的对话记录")
	ask := flag.String("ask", "", "要提问的问题")
	doc := flag.String("doc", "", "将问题限定在某个文档 (文件名)")
	reset := flag.Bool("clear", false, "清空对话记录")
	list := flag.Bool("list", false, "列出可用的宪法文档")
	fetch := flag.String("download", "", "下载指定文件名的文档")
	outDir := flag.String("out", ".", "下载保存目录")
	history := flag.Bool("history", false, "打印当前对话记录")
	dir := flag.String("dir", "", "对话记录目录，默认位于用户配置目录")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] 无法加载 .env，改用系统环境变量: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("配置加载失败: %v", err)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(os.Stderr, level, "console", "chatcli")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Chat.Timeout+30*time.Second)
	defer cancel()

	documents := bootstrap.Documents(cfg.Catalog, log)

	switch {
	case *list:
		if err := listDocuments(ctx, os.Stdout, documents); err != nil {
			fatalf("获取文档列表失败: %v", err)
		}
		return
	case *fetch != "":
		saved, err := downloadDocument(ctx, cfg, *fetch, *outDir, log)
		if err != nil {
			fatalf("下载失败: %v", err)
		}
		fmt.Printf("已保存 %s\n", saved)
		return
	}

	slot, err := openSlot(*dir)
	if err != nil {
		fatalf("无法打开对话记录目录: %v", err)
	}

	hub := notify.NewHub(0, log)
	events, unsubscribe := hub.Subscribe(*profile)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			if ev.Kind == notify.EventNotification && ev.Notification != nil {
				fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", ev.Notification.Type, ev.Notification.Title, ev.Notification.Message)
			}
		}
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	svc := chatservice.NewService(slot, bootstrap.Answerer(ctx, cfg, documents, log), hub, chatservice.Options{
		HistoryWindow: cfg.Chat.HistoryWindow,
		Timeout:       cfg.Chat.Timeout,
		MaxResults:    cfg.Chat.MaxResults,
		Logger:        logger.Component(log, "chat"),
	})
	if _, err := svc.CreateSession(ctx, *profile, *doc); err != nil {
		fatalf("打开会话失败: %v", err)
	}

	if *reset {
		if _, err := svc.Reset(ctx, *profile); err != nil {
			fatalf("清空失败: %v", err)
		}
		fmt.Println("对话记录已清空")
	}

	if q := strings.TrimSpace(*ask); q != "" {
		result, err := svc.Submit(ctx, *profile, q)
		if err != nil {
			fatalf("提问失败: %v", err)
		}
		fmt.Println(result.Reply.Content)
	}

	if *history {
		messages, err := svc.LoadTranscript(ctx, *profile)
		if err != nil {
			fatalf("读取对话记录失败: %v", err)
		}
		printTranscript(os.Stdout, messages)
	}

	if !*reset && *ask == "" && !*history {
		flag.Usage()
	}
}

func openSlot(dir string) (storage.Slot, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "constitution-portal")
	}
	return storage.NewFileSlot(dir)
}

func listDocuments(ctx context.Context, w io.Writer, documents document.Store) error {
	items, err := documents.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range items {
		year := "-"
		if d.Year != nil {
			year = fmt.Sprint(*d.Year)
		}
		fmt.Fprintf(w, "%-6s %-8s %-40s %s\n", year, d.Status, d.Title, d.Filename)
	}
	return nil
}

// downloadDocument saves filename into outDir and returns the written path.
func downloadDocument(ctx context.Context, cfg *config.Config, filename, outDir string, log zerolog.Logger) (string, error) {
	if filename == "" {
		return "", errors.New("filename is required")
	}
	name, err := download.SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	blobs, err := bootstrap.Blobs(cfg.Download.BlobDir)
	if err != nil {
		return "", err
	}
	helper := download.NewHelper(resty.New().SetTimeout(cfg.Catalog.Timeout), blobs, download.DirSaver{Dir: outDir}, download.Options{
		ReleaseDelay: cfg.Download.ReleaseDelay,
		Logger:       logger.Component(log, "download"),
	})
	defer helper.Wait()

	files := catalog.Files{BaseURL: cfg.Catalog.BaseURL}
	if err := helper.DownloadFromURL(ctx, files.FileURL(filename), filename); err != nil {
		return "", err
	}
	return filepath.Join(outDir, name), nil
}

func printTranscript(w io.Writer, messages []chat.Message) {
	for _, m := range messages {
		who := "助手"
		if m.Role == chat.RoleUser {
			who = "我"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt, who, m.Content)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
