package driver

// StealthScript masks the most common automation-detection signals. It must
// be attached with AddInitScript before the page's first navigation.
const StealthScript = `
Object.defineProperty(navigator, 'webdriver', {
    get: () => false
});
Object.defineProperty(navigator, 'plugins', {
    get: () => [1, 2, 3, 4, 5]
});
Object.defineProperty(navigator, 'languages', {
    get: () => ['en-US', 'en']
});
window.chrome = {
    runtime: {}
};
`
