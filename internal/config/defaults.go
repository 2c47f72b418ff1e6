package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/lens/data/pdf_index.json"
	}
	if cfg.Storage.HistoryPath == "" {
		cfg.Storage.HistoryPath = "/usr/local/var/lens/data/db/captures.db"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/lens/data/indices/bleve"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "/usr/local/var/lens/data/models/clip-text.onnx"
	}
	if cfg.Embedding.ImageModelPath == "" {
		cfg.Embedding.ImageModelPath = "/usr/local/var/lens/data/models/clip-vision.onnx"
	}
	if cfg.Embedding.TokenizerPath == "" {
		cfg.Embedding.TokenizerPath = "/usr/local/var/lens/data/models/tokenizer.json"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.OCR.Engine == "" {
		cfg.OCR.Engine = "tesseract"
	}
	if cfg.OCR.TesseractPath == "" {
		cfg.OCR.TesseractPath = "tesseract"
	}
	if len(cfg.OCR.Languages) == 0 {
		cfg.OCR.Languages = []string{"eng"}
	}
	if cfg.OCR.MaxRetries == 0 {
		cfg.OCR.MaxRetries = 3
	}
	if cfg.OCR.TimeoutSecs == 0 {
		cfg.OCR.TimeoutSecs = 60
	}
	if cfg.OCR.MinHeight == 0 {
		cfg.OCR.MinHeight = 32
	}
	if cfg.Capture.Padding == 0 {
		cfg.Capture.Padding = 8
	}
	if cfg.Capture.DuplicateSimilarity == 0 {
		cfg.Capture.DuplicateSimilarity = 0.95
	}
	if cfg.Segment.ProcessingWidth == 0 {
		cfg.Segment.ProcessingWidth = 800
	}
	if cfg.Segment.MinTextArea == 0 {
		cfg.Segment.MinTextArea = 60
	}
	if cfg.Index.LineTolerance == 0 {
		cfg.Index.LineTolerance = 2.5
	}
	if cfg.Index.MinImageSize == 0 {
		cfg.Index.MinImageSize = 50
	}
	if cfg.Search.TopN == 0 {
		cfg.Search.TopN = 8
	}
	if cfg.Search.MaxTopN == 0 {
		cfg.Search.MaxTopN = 100
	}
	if cfg.Search.HighlightThreshold == 0 {
		cfg.Search.HighlightThreshold = 0.2
	}
	if cfg.Search.SnippetLength == 0 {
		cfg.Search.SnippetLength = 180
	}
	cfg.Search.TextWeight, cfg.Search.ImageWeight = cfg.Search.Weights()
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
