package config

// Initialize 触发本包内所有配置文件的 init 加载
func Initialize() {
	// 什么也不做，引用本包即可触发各配置项注册
}
