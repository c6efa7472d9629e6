package config

import (
	"encoding/json"
	"os"
	"runtime"
	"sync"
)

// Settings 自动化开关配置
// 由设置界面写入，核心逻辑只读；每次页面引导时重新加载
type Settings struct {
	AutoSubmit               bool `json:"auto_submit"`                 // 自动填写并提交测验/作业
	RandomAnswers            bool `json:"random_answers"`              // 随机选择答案
	SkipEndModuleAssignments bool `json:"skip_end_module_assignments"` // 跳过模块结尾作业
	NavigateContent          bool `json:"navigate_content"`            // 自动遍历内容页
	NavigateQuizzes          bool `json:"navigate_quizzes"`            // 自动遍历测验
	IsActive                 bool `json:"is_active"`                   // 自动化总开关（跨页面持久）
}

// StoreOptions 队列存储策略
// 历史版本中 disable 是否清除测验队列存在分歧，这里收敛为显式配置项
type StoreOptions struct {
	ClearQuizQueueOnDisable bool `json:"clear_quiz_queue_on_disable"`
}

// UserData 用户数据（登录 Cookie 由浏览器提取后回写）
type UserData struct {
	Cookie string `json:"cookie"`
}

// ConfigFile 配置文件结构
type ConfigFile struct {
	BaseURL  string       `json:"base_url"`
	UserData UserData     `json:"user_data"`
	Settings Settings     `json:"settings"`
	Store    StoreOptions `json:"store"`
}

// Config 全局配置管理
type Config struct {
	mu               sync.RWMutex
	BaseURL          string
	UserData         UserData
	settings         Settings
	store            StoreOptions
	FilePath         string
	ChromeBinaryPath string
	IsLinux          bool
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig 获取配置单例
func GetConfig() *Config {
	once.Do(func() {
		instance = New("./amigo_settings.json")
	})
	return instance
}

// New 创建独立配置实例（测试用）
func New(filePath string) *Config {
	c := &Config{
		BaseURL:  defaultBaseURL,
		settings: DefaultSettings(),
		store:    defaultStoreOptions(),
		FilePath: filePath,
	}
	c.initPaths()
	return c
}

const defaultBaseURL = "https://amigolms.amityonline.com"

// DefaultSettings 默认开关配置
func DefaultSettings() Settings {
	return Settings{
		AutoSubmit:               true,
		RandomAnswers:            true,
		SkipEndModuleAssignments: true,
		NavigateContent:          true,
		NavigateQuizzes:          true,
		IsActive:                 false,
	}
}

func defaultStoreOptions() StoreOptions {
	return StoreOptions{
		ClearQuizQueueOnDisable: true,
	}
}

// initPaths 初始化路径配置
func (c *Config) initPaths() {
	c.IsLinux = runtime.GOOS == "linux"

	if c.IsLinux {
		c.ChromeBinaryPath = c.findChromeBinary()
	} else {
		c.ChromeBinaryPath = c.findWindowsChrome()
	}
}

// findWindowsChrome Windows 下自动查找 Chrome 二进制文件
func (c *Config) findWindowsChrome() string {
	paths := []string{
		os.Getenv("PROGRAMFILES") + "\\Google\\Chrome\\Application\\chrome.exe",
		os.Getenv("PROGRAMFILES(X86)") + "\\Google\\Chrome\\Application\\chrome.exe",
		os.Getenv("LOCALAPPDATA") + "\\Google\\Chrome\\Application\\chrome.exe",
		".\\chrome-win64\\chrome.exe",
		"..\\chrome-win64\\chrome.exe",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// findChromeBinary Linux下自动查找Chrome
func (c *Config) findChromeBinary() string {
	binaries := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}

	for _, binary := range binaries {
		if _, err := os.Stat(binary); err == nil {
			return binary
		}
	}
	return ""
}

// Load 加载配置文件
// 文件不存在或解析失败时静默回退默认配置，不中断自动化
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			c.settings = DefaultSettings()
			c.store = defaultStoreOptions()
			return c.saveInternal()
		}
		c.settings = DefaultSettings()
		return nil
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		c.settings = DefaultSettings()
		c.store = defaultStoreOptions()
		return nil
	}

	if configFile.BaseURL != "" {
		c.BaseURL = configFile.BaseURL
	}
	c.UserData = configFile.UserData
	c.settings = configFile.Settings
	c.store = configFile.Store

	return nil
}

// Save 保存配置文件
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveInternal()
}

// saveInternal 内部保存方法（不加锁）
func (c *Config) saveInternal() error {
	configFile := ConfigFile{
		BaseURL:  c.BaseURL,
		UserData: c.UserData,
		Settings: c.settings,
		Store:    c.store,
	}

	data, err := json.MarshalIndent(configFile, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.FilePath, data, 0644)
}

// Settings 读取当前开关配置
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// UpdateSettings 更新开关配置（仅供设置界面调用）
func (c *Config) UpdateSettings(s Settings) error {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	return c.Save()
}

// SetActive 更新总开关并持久化
func (c *Config) SetActive(active bool) error {
	c.mu.Lock()
	c.settings.IsActive = active
	c.mu.Unlock()
	return c.Save()
}

// StoreOptions 读取队列存储策略
func (c *Config) StoreOptions() StoreOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// UpdateCookie 更新Cookie
func (c *Config) UpdateCookie(cookie string) error {
	c.mu.Lock()
	c.UserData.Cookie = cookie
	c.mu.Unlock()
	return c.Save()
}
