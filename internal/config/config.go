package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppConfig       *AppConfig
	BrowserConfig   *BrowserConfig
	TraversalConfig *TraversalConfig
	PlatformConfig  *PlatformConfig
}

type AppConfig struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type BrowserConfig struct {
	Headless    bool   `envconfig:"BROWSER_HEADLESS" default:"false"`
	SlowMo      int    `envconfig:"BROWSER_SLOW_MO" default:"100"`
	Timeout     int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	UserDataDir string `envconfig:"BROWSER_USER_DATA_DIR" default:""`
}

type TraversalConfig struct {
	LoginTimeoutSeconds   int    `envconfig:"LOGIN_TIMEOUT_SECONDS" default:"120"`
	ContentTimeoutSeconds int    `envconfig:"CONTENT_TIMEOUT_SECONDS" default:"90"`
	LoginPollIntervalMs   int    `envconfig:"LOGIN_POLL_INTERVAL_MS" default:"2000"`
	WaitPollIntervalMs    int    `envconfig:"WAIT_POLL_INTERVAL_MS" default:"500"`
	ClickTimeoutMs        int    `envconfig:"CLICK_TIMEOUT_MS" default:"5000"`
	MaxStalledAttempts    int    `envconfig:"MAX_STALLED_ATTEMPTS" default:"3"`
	CourseName            string `envconfig:"COURSE_NAME" default:"实验室安全教育"`
}

// PlatformConfig holds the platform's current UI markers. The exact selectors
// distinguishing complete from incomplete and video from interactive content
// are unstable platform signals, so they are configuration, not code.
// Defaults target the Weiban learning platform.
type PlatformConfig struct {
	BaseURL             string `envconfig:"PLATFORM_BASE_URL" default:"https://weiban.mycourse.cn/#/"`
	EntryImageSelector  string `envconfig:"PLATFORM_ENTRY_IMAGE_SELECTOR" default:"img[src*=\"lab-title-thin\"]"`
	CourseTitleSelector string `envconfig:"PLATFORM_COURSE_TITLE_SELECTOR" default:"h5.block-title"`

	LoggedInSelector  string `envconfig:"PLATFORM_LOGGED_IN_SELECTOR" default:".user-info, .user-name, .avatar, [class*=\"user\"], [class*=\"personal\"]"`
	LoginFormSelector string `envconfig:"PLATFORM_LOGIN_FORM_SELECTOR" default:"input[type=\"password\"]"`
	LoginURLFragment  string `envconfig:"PLATFORM_LOGIN_URL_FRAGMENT" default:"login"`

	ModuleSelector       string `envconfig:"PLATFORM_MODULE_SELECTOR" default:".van-collapse-item"`
	ModuleTitleSelector  string `envconfig:"PLATFORM_MODULE_TITLE_SELECTOR" default:".text"`
	ModuleCountSelector  string `envconfig:"PLATFORM_MODULE_COUNT_SELECTOR" default:".count"`
	ModuleExpandSelector string `envconfig:"PLATFORM_MODULE_EXPAND_SELECTOR" default:".van-collapse-item__title"`
	ModuleExpandedClass  string `envconfig:"PLATFORM_MODULE_EXPANDED_CLASS" default:"van-collapse-item--expanded"`

	ItemSelector       string `envconfig:"PLATFORM_ITEM_SELECTOR" default:".img-texts-item"`
	ItemTitleSelector  string `envconfig:"PLATFORM_ITEM_TITLE_SELECTOR" default:".title"`
	ItemCompletedClass string `envconfig:"PLATFORM_ITEM_COMPLETED_CLASS" default:"passed"`

	ContentFrameURLHint       string   `envconfig:"PLATFORM_CONTENT_FRAME_URL_HINT" default:"mcwk.mycourse.cn"`
	VideoMarkerSelector       string   `envconfig:"PLATFORM_VIDEO_MARKER_SELECTOR" default:"p.txt-des, video, [class*=\"video-player\"]"`
	InteractiveMarkerSelector string   `envconfig:"PLATFORM_INTERACTIVE_MARKER_SELECTOR" default:".btn-start, a.btn-start, .pri-start-btn"`
	PlayButtonSelector        string   `envconfig:"PLATFORM_PLAY_BUTTON_SELECTOR" default:".vjs-big-play-button, [class*=\"play-btn\"], button[class*=\"play\"]"`
	StartButtonSelectors      []string `envconfig:"PLATFORM_START_BUTTON_SELECTORS" default:".btn-start,a:has(img[src*=\"btn-start\"]),.pri-start-btn,a[class*=\"start\"]"`
	NextButtonSelectors       []string `envconfig:"PLATFORM_NEXT_BUTTON_SELECTORS" default:"[class*=\"btn-next\"],[class*=\"continue\"],[class*=\"confirm\"]"`
	CompletionBadgeSelector   string   `envconfig:"PLATFORM_COMPLETION_BADGE_SELECTOR" default:"[class*=\"course-finish\"], [class*=\"completed\"], [class*=\"study-done\"]"`
	FinishFunction            string   `envconfig:"PLATFORM_FINISH_FUNCTION" default:"finishWxCourse"`
	BackButtonSelectors       []string `envconfig:"PLATFORM_BACK_BUTTON_SELECTORS" default:"button.comment-footer-button,.comment-footer-button,.van-nav-bar__left"`
}

func (t *TraversalConfig) LoginTimeout() time.Duration {
	return time.Duration(t.LoginTimeoutSeconds) * time.Second
}

func (t *TraversalConfig) ContentTimeout() time.Duration {
	return time.Duration(t.ContentTimeoutSeconds) * time.Second
}

func (t *TraversalConfig) LoginPollInterval() time.Duration {
	return time.Duration(t.LoginPollIntervalMs) * time.Millisecond
}

func (t *TraversalConfig) WaitPollInterval() time.Duration {
	return time.Duration(t.WaitPollIntervalMs) * time.Millisecond
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	return &conf, nil
}
